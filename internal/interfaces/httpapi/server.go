package httpapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"availsdk/internal/application"
	"availsdk/internal/config"
	"availsdk/internal/domain"

	"github.com/google/uuid"
)

const maxBodyBytes = 2 << 20

type Transactor interface {
	SubmitData(ctx context.Context, account application.Account, data []byte) (application.SubmitDataResult, error)
	TransferKeepAlive(ctx context.Context, account application.Account, dest domain.AccountID, amount *big.Int) (application.TransferResult, error)
}

type AccountQuery interface {
	Nonce(ctx context.Context, account domain.AccountID, mode domain.NonceMode) (uint32, error)
	Balance(ctx context.Context, account domain.AccountID) (domain.AccountInfo, error)
	AppKeys(ctx context.Context, owner domain.AccountID) ([]uint32, error)
}

type ChainStatus interface {
	FinalizedNumber(ctx context.Context) (uint64, error)
	BlockByHash(ctx context.Context, hash domain.Hash) (domain.Block, error)
}

type Kate interface {
	BlockLength(ctx context.Context, at *domain.Hash) (domain.BlockLength, error)
	QueryDataProof(ctx context.Context, txIndex uint32, at *domain.Hash) (domain.DataProof, error)
}

type LedgerStore interface {
	application.LedgerQueryRepository
	Ping(ctx context.Context) error
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Deps wires the server. Transactor and Account are optional: without a signing
// account the submission routes answer 503. Ledger and Kate are optional too.
type Deps struct {
	Transactor Transactor
	Account    *application.Account
	Query      AccountQuery
	Chain      ChainStatus
	Kate       Kate
	Ledger     LedgerStore
}

type Server struct {
	cfg       config.Config
	deps      Deps
	metrics   *Metrics
	buildInfo BuildInfo
}

func NewServer(cfg config.Config, deps Deps, metrics *Metrics, buildInfo BuildInfo) (*Server, error) {
	if deps.Query == nil || deps.Chain == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{cfg: cfg, deps: deps, metrics: metrics, buildInfo: buildInfo}, nil
}

func (s *Server) MetricsObserver() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /v1/data", s.handleSubmitData)
	mux.HandleFunc("POST /v1/transfers", s.handleTransfer)
	mux.HandleFunc("GET /v1/accounts/{address}/nonce", s.handleNonce)
	mux.HandleFunc("GET /v1/accounts/{address}/balance", s.handleBalance)
	mux.HandleFunc("GET /v1/accounts/{address}/appkeys", s.handleAppKeys)
	mux.HandleFunc("GET /v1/blocks/{hash}/submissions", s.handleBlockSubmissions)
	mux.HandleFunc("GET /v1/kate/block-length", s.handleBlockLength)
	mux.HandleFunc("GET /v1/kate/data-proof", s.handleDataProof)
	mux.HandleFunc("GET /v1/submissions", s.handleSubmissions)
	mux.HandleFunc("GET /v1/state", s.handleState)
	return withRequestID(mux)
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("http api listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "request_id", id, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.deps.Ledger != nil {
		if err := s.deps.Ledger.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "db not ready")
			return
		}
	}
	latest, err := s.deps.Chain.FinalizedNumber(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "node not ready")
		return
	}
	s.metrics.OnLatestBlock(latest)
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready", "finalized_block": latest})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

type submitDataRequest struct {
	// Data is submitted verbatim unless Encoding is "hex".
	Data     string  `json:"data"`
	Encoding string  `json:"encoding,omitempty"`
	AppID    *uint32 `json:"app_id,omitempty"`
	WaitFor  string  `json:"wait_for,omitempty"`
}

type submitDataResponse struct {
	Details  domain.TxDetails `json:"details"`
	Who      domain.AccountID `json:"who"`
	DataHash domain.Hash      `json:"data_hash"`
	Data     string           `json:"data"`
}

func (s *Server) handleSubmitData(w http.ResponseWriter, r *http.Request) {
	account, ok := s.signingAccount(w)
	if !ok {
		return
	}
	var req submitDataRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := requestData(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err = applyRequestOptions(account, req.AppID, req.WaitFor)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.deps.Transactor.SubmitData(r.Context(), account, data)
	if err != nil {
		respondTxError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, submitDataResponse{
		Details:  result.Details,
		Who:      result.Event.Who,
		DataHash: result.Event.DataHash,
		Data:     "0x" + hex.EncodeToString(result.Data),
	})
}

type transferRequest struct {
	Dest    string `json:"dest"`
	Amount  string `json:"amount"`
	WaitFor string `json:"wait_for,omitempty"`
}

type transferResponse struct {
	Details domain.TxDetails  `json:"details"`
	From    domain.AccountID  `json:"from"`
	To      domain.AccountID  `json:"to"`
	Amount  string            `json:"amount"`
	Killed  *domain.AccountID `json:"killed,omitempty"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	account, ok := s.signingAccount(w)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	dest, err := domain.ParseAccountID(req.Dest)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid dest")
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.Amount), 10)
	if !ok || amount.Sign() <= 0 {
		respondError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	account, err = applyRequestOptions(account, nil, req.WaitFor)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.deps.Transactor.TransferKeepAlive(r.Context(), account, dest, amount)
	if err != nil {
		respondTxError(w, err)
		return
	}
	response := transferResponse{
		Details: result.Details,
		From:    result.Event.From,
		To:      result.Event.To,
	}
	if result.Event.Amount != nil {
		response.Amount = result.Event.Amount.String()
	}
	if result.Killed != nil {
		killed := result.Killed.Account
		response.Killed = &killed
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAccount(w, r)
	if !ok {
		return
	}
	mode, err := domain.ParseNonceMode(r.URL.Query().Get("mode"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	nonce, err := s.deps.Query.Nonce(r.Context(), account, mode)
	if err != nil {
		respondUpstreamError(w, "nonce query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"address": account.SS58(), "mode": mode.String(), "nonce": nonce})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAccount(w, r)
	if !ok {
		return
	}
	info, err := s.deps.Query.Balance(r.Context(), account)
	if err != nil {
		respondUpstreamError(w, "balance query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"address":  account.SS58(),
		"nonce":    info.Nonce,
		"free":     bigString(info.Free),
		"reserved": bigString(info.Reserved),
		"frozen":   bigString(info.Frozen),
	})
}

func (s *Server) handleAppKeys(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAccount(w, r)
	if !ok {
		return
	}
	ids, err := s.deps.Query.AppKeys(r.Context(), account)
	if err != nil {
		respondUpstreamError(w, "app key query failed", err)
		return
	}
	if ids == nil {
		ids = []uint32{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"owner": account.SS58(), "app_ids": ids})
}

type submissionView struct {
	TxHash  domain.Hash      `json:"tx_hash"`
	TxIndex uint32           `json:"tx_index"`
	Signer  domain.AccountID `json:"signer"`
	AppID   uint32           `json:"app_id"`
	Data    string           `json:"data"`
	ASCII   string           `json:"ascii,omitempty"`
}

func (s *Server) handleBlockSubmissions(w http.ResponseWriter, r *http.Request) {
	hash, err := domain.ParseHash(r.PathValue("hash"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid block hash")
		return
	}
	block, err := s.deps.Chain.BlockByHash(r.Context(), hash)
	if err != nil {
		respondUpstreamError(w, "block fetch failed", err)
		return
	}

	submissions := block.DataSubmissions()
	query := r.URL.Query()
	if raw := query.Get("app_id"); raw != "" {
		appID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid app_id")
			return
		}
		submissions = block.DataSubmissionsByAppID(uint32(appID))
	} else if raw := query.Get("signer"); raw != "" {
		signer, err := domain.ParseAccountID(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid signer")
			return
		}
		submissions = block.DataSubmissionsBySigner(signer)
	}

	views := make([]submissionView, 0, len(submissions))
	for _, submission := range submissions {
		views = append(views, submissionView{
			TxHash:  submission.TxHash,
			TxIndex: submission.TxIndex,
			Signer:  submission.Signer,
			AppID:   submission.AppID,
			Data:    "0x" + submission.Hex(),
			ASCII:   submission.ASCII(),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"block_hash":   block.Hash,
		"block_number": block.Number,
		"submissions":  views,
	})
}

func (s *Server) handleBlockLength(w http.ResponseWriter, r *http.Request) {
	if s.deps.Kate == nil {
		respondError(w, http.StatusServiceUnavailable, "kate rpc not configured")
		return
	}
	at, err := optionalHash(r, "at")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	length, err := s.deps.Kate.BlockLength(r.Context(), at)
	if err != nil {
		respondUpstreamError(w, "block length query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, length)
}

func (s *Server) handleDataProof(w http.ResponseWriter, r *http.Request) {
	if s.deps.Kate == nil {
		respondError(w, http.StatusServiceUnavailable, "kate rpc not configured")
		return
	}
	raw := r.URL.Query().Get("tx_index")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "tx_index is required")
		return
	}
	txIndex, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tx_index")
		return
	}
	at, err := optionalHash(r, "at")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	proof, err := s.deps.Kate.QueryDataProof(r.Context(), uint32(txIndex), at)
	if err != nil {
		respondUpstreamError(w, "data proof query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, proof)
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		respondError(w, http.StatusServiceUnavailable, "ledger not configured")
		return
	}
	filter, err := parseSubmissionFilter(r, s.cfg.Network)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	submissions, err := s.deps.Ledger.QuerySubmissions(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if submissions == nil {
		submissions = []domain.SubmissionRecord{}
	}
	respondJSON(w, http.StatusOK, submissions)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"network": s.cfg.Network,
		"config": map[string]any{
			"endpoint":      s.cfg.Endpoint,
			"http_addr":     s.cfg.HTTPAddr,
			"db_driver":     s.cfg.DBDriver,
			"app_id":        s.cfg.AppID,
			"wait_for":      s.cfg.WaitFor.String(),
			"nonce_mode":    s.cfg.NonceMode.String(),
			"tx_timeout":    s.cfg.TxTimeout.String(),
			"signing":       s.deps.Account != nil && s.deps.Transactor != nil,
			"kafka_enabled": len(s.cfg.KafkaBrokers) > 0,
		},
	}
	snap := s.metrics.Snapshot()
	response["latest_block"] = snap.LatestBlock
	response["uptime"] = snap.Uptime.Round(time.Second).String()
	if s.deps.Ledger != nil {
		last, ok, err := s.deps.Ledger.LastProcessedBlock(r.Context(), s.cfg.Network)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "state read failed")
			return
		}
		response["last_processed_block"] = last
		response["has_state"] = ok
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) signingAccount(w http.ResponseWriter) (application.Account, bool) {
	if s.deps.Transactor == nil || s.deps.Account == nil {
		respondError(w, http.StatusServiceUnavailable, "no signing account configured")
		return application.Account{}, false
	}
	return *s.deps.Account, true
}

func applyRequestOptions(account application.Account, appID *uint32, waitFor string) (application.Account, error) {
	if appID != nil {
		account = account.WithAppID(*appID)
	}
	if waitFor != "" {
		wait, err := domain.ParseWaitFor(waitFor)
		if err != nil {
			return account, err
		}
		account = account.WithWait(wait)
	}
	return account, nil
}

func requestData(req submitDataRequest) ([]byte, error) {
	if req.Data == "" {
		return nil, errors.New("data is required")
	}
	switch strings.ToLower(req.Encoding) {
	case "", "utf8", "text":
		return []byte(req.Data), nil
	case "hex":
		data, err := domain.DecodeHexData(req.Data)
		if err != nil {
			return nil, errors.New("invalid hex data")
		}
		return data, nil
	default:
		return nil, errors.New("invalid encoding")
	}
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func pathAccount(w http.ResponseWriter, r *http.Request) (domain.AccountID, bool) {
	account, err := domain.ParseAccountID(r.PathValue("address"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address")
		return domain.AccountID{}, false
	}
	return account, true
}

func optionalHash(r *http.Request, key string) (*domain.Hash, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	hash, err := domain.ParseHash(raw)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &hash, nil
}

func parseSubmissionFilter(r *http.Request, network string) (application.SubmissionQueryFilter, error) {
	limit, err := parseLimit(r)
	if err != nil {
		return application.SubmissionQueryFilter{}, err
	}
	from, to, err := parseBlockRange(r)
	if err != nil {
		return application.SubmissionQueryFilter{}, err
	}
	query := r.URL.Query()
	filter := application.SubmissionQueryFilter{
		Network:   network,
		Signer:    query.Get("signer"),
		TxHash:    query.Get("tx_hash"),
		FromBlock: from,
		ToBlock:   to,
		Limit:     limit,
	}
	if raw := query.Get("network"); raw != "" {
		filter.Network = raw
	}
	if raw := query.Get("app_id"); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return application.SubmissionQueryFilter{}, errors.New("invalid app_id")
		}
		appID := uint32(value)
		filter.AppID = &appID
	}
	return filter, nil
}

func parseLimit(r *http.Request) (int, error) {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return 0, errors.New("invalid limit")
		}
		return value, nil
	}
	return 100, nil
}

func parseBlockRange(r *http.Request) (*uint64, *uint64, error) {
	fromRaw := r.URL.Query().Get("from_block")
	toRaw := r.URL.Query().Get("to_block")

	var from *uint64
	var to *uint64

	if fromRaw != "" {
		value, err := strconv.ParseUint(fromRaw, 10, 64)
		if err != nil {
			return nil, nil, errors.New("invalid from_block")
		}
		from = &value
	}
	if toRaw != "" {
		value, err := strconv.ParseUint(toRaw, 10, 64)
		if err != nil {
			return nil, nil, errors.New("invalid to_block")
		}
		to = &value
	}
	if from != nil && to != nil && *from > *to {
		return nil, nil, errors.New("from_block is after to_block")
	}
	return from, to, nil
}

func bigString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// respondTxError maps submission failures: a timeout is 504, a rejected or failed
// transaction 422 with its details, anything else 502.
func respondTxError(w http.ResponseWriter, err error) {
	var failed *domain.TransactionFailed
	isFailed := errors.As(err, &failed)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		body := map[string]any{"error": "transaction timed out"}
		if isFailed {
			body["details"] = failed.Details
		}
		respondJSON(w, http.StatusGatewayTimeout, body)
	case isFailed:
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": failed.Reason, "details": failed.Details})
	default:
		slog.Warn("transaction submission failed", "err", err)
		respondError(w, http.StatusBadGateway, "transaction submission failed")
	}
}

func respondUpstreamError(w http.ResponseWriter, message string, err error) {
	slog.Warn(message, "err", err)
	respondError(w, http.StatusBadGateway, message)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
