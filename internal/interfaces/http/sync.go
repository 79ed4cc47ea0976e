package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"balance/internal/domain/exchange"
	"balance/internal/domain/institution"
	"balance/internal/infrastructure/exchangeapi"
)

// operationRetention is how long finished operations stay queryable.
const operationRetention = time.Hour

// Syncer syncs one exchange.
type Syncer interface {
	Sync(ctx context.Context, source institution.Source) (*exchange.SyncResult, error)
}

type syncOperation struct {
	op        *exchangeapi.Operation[*exchange.SyncResult]
	source    institution.Source
	startedAt time.Time
}

// Operations tracks background syncs started over HTTP.
type Operations struct {
	mu  sync.Mutex
	ops map[string]*syncOperation
	now func() time.Time
}

func NewOperations() *Operations {
	return &Operations{
		ops: make(map[string]*syncOperation),
		now: time.Now,
	}
}

func (o *Operations) add(op *exchangeapi.Operation[*exchange.SyncResult], source institution.Source) *syncOperation {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	for id, so := range o.ops {
		if so.op.Status() != exchangeapi.StatusRunning && now.Sub(so.startedAt) > operationRetention {
			delete(o.ops, id)
		}
	}
	so := &syncOperation{op: op, source: source, startedAt: now}
	o.ops[op.ID()] = so
	return so
}

func (o *Operations) get(id string) (*syncOperation, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	so, ok := o.ops[id]
	return so, ok
}

type OperationResponse struct {
	ID        string               `json:"id"`
	Source    institution.Source   `json:"source"`
	Status    exchangeapi.Status   `json:"status"`
	StartedAt time.Time            `json:"startedAt"`
	Result    *exchange.SyncResult `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
}

type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

type SyncHandler struct {
	syncer     Syncer
	operations *Operations
	logger     *zap.Logger
}

func NewSyncHandler(syncer Syncer, operations *Operations, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		syncer:     syncer,
		operations: operations,
		logger:     logger.Named("sync_handler"),
	}
}

// HandleSync starts a sync of {source} in the background and returns 202 with its operation.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	source, ok := sourceFromPath(w, r, h.logger)
	if !ok {
		return
	}

	logger := h.logger.With(zap.String("source", source.String()))
	// The sync outlives the request.
	ctx := context.WithoutCancel(r.Context())
	op := exchangeapi.Start(ctx, func(ctx context.Context) (*exchange.SyncResult, error) {
		return h.syncer.Sync(ctx, source)
	}, func(res exchangeapi.Result[*exchange.SyncResult]) {
		if res.Err != nil {
			logger.Error("sync failed", zap.Error(res.Err))
			return
		}
		logger.Info("sync finished",
			zap.Int("accounts_upserted", res.Value.Accounts.Upserted),
			zap.Int("accounts_deleted", res.Value.Accounts.Deleted),
			zap.Int("transactions_upserted", res.Value.Transactions.Upserted),
		)
	})
	so := h.operations.add(op, source)

	w.Header().Set("Location", "/api/operations/"+op.ID())
	writeJSON(w, http.StatusAccepted, toOperationResponse(so))
}

// HandleOperation reports (GET) or cancels (DELETE) a sync operation.
func (h *SyncHandler) HandleOperation(w http.ResponseWriter, r *http.Request) {
	so, ok := h.operations.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Operation not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toOperationResponse(so))
	case http.MethodDelete:
		writeJSON(w, http.StatusOK, CancelResponse{Cancelled: so.op.Cancel()})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func toOperationResponse(so *syncOperation) OperationResponse {
	resp := OperationResponse{
		ID:        so.op.ID(),
		Source:    so.source,
		Status:    so.op.Status(),
		StartedAt: so.startedAt,
	}
	if res, ok := so.op.Result(); ok {
		resp.Result = res.Value
		if res.Err != nil {
			resp.Error = syncErrorMessage(res.Err)
		}
	}
	return resp
}

func syncErrorMessage(err error) string {
	switch {
	case errors.Is(err, exchange.ErrNotConnected):
		return "exchange is not connected"
	case errors.Is(err, exchange.ErrSyncInProgress):
		return "a sync of this exchange is already running"
	case errors.Is(err, exchangeapi.ErrPanic):
		return "internal error"
	default:
		return err.Error()
	}
}
