// Command payattn-escrowsim is a manual-QA RPC server for the escrow
// program: it exposes every instruction (create, settle_user,
// settle_publisher, settle_platform, refund) over plain HTTP routes so an
// engineer can exercise the escrow lifecycle with curl, without standing
// up the full coordinator daemon or a database.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/escrow"
	"github.com/payattn/payattn/pkg/log"
	"github.com/payattn/payattn/pkg/perrors"
	"github.com/payattn/payattn/pkg/walletkeys"
)

var (
	addr      = flag.String("addr", ":9090", "listen address")
	programID = flag.String("program-id", "", "base58 escrow program id (generated if empty)")
)

type server struct {
	program *escrow.Program
	log     log.Logger
}

func main() {
	flag.Parse()
	logger := log.New()

	var pid core.Pubkey
	if *programID != "" {
		parsed, err := core.PubkeyFromBase58(*programID)
		if err != nil {
			logger.Fatal("invalid --program-id", "error", err)
		}
		pid = parsed
	} else {
		pub, _, err := walletkeys.GenerateKeypair()
		if err != nil {
			logger.Fatal("failed to generate a program id", "error", err)
		}
		parsed, err := core.PubkeyFromBytes(pub)
		if err != nil {
			logger.Fatal("failed to derive a program id", "error", err)
		}
		pid = parsed
	}

	s := &server{
		program: escrow.NewProgram(pid, escrow.NewMemState()),
		log:     logger,
	}

	r := s.setupRoutes()
	logger.Info("escrow simulator listening", "addr", *addr, "program_id", pid.String())
	srv := &http.Server{Addr: *addr, Handler: r, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", "error", err)
	}
}

func (s *server) setupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/escrow/create", s.handleCreate).Methods("POST")
	r.HandleFunc("/escrow/{addr}", s.handleGet).Methods("GET")
	r.HandleFunc("/escrow/{addr}/settle/user", s.handleSettleUser).Methods("POST")
	r.HandleFunc("/escrow/{addr}/settle/publisher", s.handleSettlePublisher).Methods("POST")
	r.HandleFunc("/escrow/{addr}/settle/platform", s.handleSettlePlatform).Methods("POST")
	r.HandleFunc("/escrow/{addr}/refund", s.handleRefund).Methods("POST")
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type createRequest struct {
	OfferID    string `json:"offer_id"`
	Advertiser string `json:"advertiser"`
	User       string `json:"user"`
	Platform   string `json:"platform"`
	Amount     uint64 `json:"amount"`
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	advertiser, err := core.PubkeyFromBase58(req.Advertiser)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := core.PubkeyFromBase58(req.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	platform, err := core.PubkeyFromBase58(req.Platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, err := s.program.CreateEscrow(escrow.CreateEscrowParams{
		OfferID:    core.OfferID(req.OfferID),
		Advertiser: advertiser,
		User:       user,
		Platform:   platform,
		Amount:     req.Amount,
	})
	if err != nil {
		writeError(w, perrors.HTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"escrow_address": addr.String()})
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	addr, err := core.PubkeyFromBase58(mux.Vars(r)["addr"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	acct, err := s.program.State.Get(addr)
	if err != nil {
		writeError(w, perrors.HTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type partyRequest struct {
	Pubkey string `json:"pubkey"`
}

func (s *server) handleSettleUser(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.program.SettleUser)
}

func (s *server) handleSettlePublisher(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.program.SettlePublisher)
}

func (s *server) handleSettlePlatform(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.program.SettlePlatform)
}

func (s *server) handleRefund(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, func(addr, party core.Pubkey) (uint64, string, error) {
		amount, err := s.program.RefundEscrow(addr, party)
		return amount, "", err
	})
}

func (s *server) settle(w http.ResponseWriter, r *http.Request, instr func(addr, party core.Pubkey) (uint64, string, error)) {
	addr, err := core.PubkeyFromBase58(mux.Vars(r)["addr"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req partyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	party, err := core.PubkeyFromBase58(req.Pubkey)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, txID, err := instr(addr, party)
	if err != nil {
		writeError(w, perrors.HTTPStatus(err), err)
		return
	}
	resp := map[string]interface{}{"amount": amount}
	if txID != "" {
		resp["tx_id"] = txID
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
