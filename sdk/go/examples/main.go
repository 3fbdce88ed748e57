package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"AgoraChain/sdk/go/agora"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(w).Encode(agora.ChatResult{
			Response: "我们决定资助该净水项目。",
			Intent: agora.PaymentIntent{
				Title:    "净水项目资助",
				Decision: "EXECUTE",
				Amount:   "0.0008",
			},
			ThreadID: "thread-demo",
			Proposal: &agora.Proposal{
				ID:     "proposal-demo",
				Status: "succeeded",
				TxHash: "0xabc",
			},
			CreatedAt: time.Now().Unix(),
		})
	})
	mux.HandleFunc("/api/v1/proposals/proposal-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agora.ProposalRecord{
			ID:        "proposal-demo",
			Title:     "净水项目资助",
			Decision:  "EXECUTE",
			AmountWei: "800000000000000",
			TxHash:    "0xabc",
			CreatedAt: time.Now().Add(-2 * time.Minute).Unix(),
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := agora.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.Chat(ctx, "请评估净水项目的资助申请")
	if err != nil {
		panic(err)
	}
	fmt.Printf("agent replied: %s\n", result.Response)
	if result.Proposal != nil {
		fmt.Printf("proposal %s status=%s tx=%s\n", result.Proposal.ID, result.Proposal.Status, result.Proposal.TxHash)

		record, err := client.GetProposal(ctx, result.Proposal.ID)
		if err != nil {
			panic(err)
		}
		fmt.Printf("ledger entry %s amount=%s wei\n", record.ID, record.AmountWei)
	}
}
