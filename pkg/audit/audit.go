// Package audit records privileged platform actions in the append-only
// platform_audit_logs table.
//
// Two write paths exist. Logger.Append is fire-and-forget: entries are buffered
// and flushed in batches by a background worker, and write failures are only
// logged. InsertTx writes an entry inside the caller's transaction so the
// audit row commits or rolls back with the change it describes.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/gym-platform/pkg/database"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"go.uber.org/zap"
)

// Action is the audited action type.
type Action string

const (
	ActionTenantCreated              Action = "tenant_created"
	ActionTenantCreateFailed         Action = "tenant_create_failed"
	ActionLimitsUpdated              Action = "limits_updated"
	ActionTenantSuspended            Action = "tenant_suspended"
	ActionTenantReactivated          Action = "tenant_reactivated"
	ActionBranchCreated              Action = "branch_created"
	ActionBranchUpdated              Action = "branch_updated"
	ActionBranchDeleted              Action = "branch_deleted"
	ActionBranchMoved                Action = "branch_moved"
	ActionQuotaBypass                Action = "quota_bypass"
	ActionUsageIncremented           Action = "usage_incremented"
	ActionPaymentCredentialsSaved    Action = "payment_credentials_saved"
	ActionPaymentCredentialsRejected Action = "payment_credentials_rejected"
	ActionPaymentCredentialsRemoved  Action = "payment_credentials_removed"
	ActionRejected                   Action = "action_rejected"
)

// Entry is one immutable audit record.
type Entry struct {
	ID             string                 `json:"id"`
	ActorID        string                 `json:"actor_user_id"`
	Action         Action                 `json:"action_type"`
	TargetTenantID *string                `json:"target_tenant_id,omitempty"`
	TargetUserID   *string                `json:"target_user_id,omitempty"`
	Description    string                 `json:"description"`
	OldValue       map[string]interface{} `json:"old_value,omitempty"`
	NewValue       map[string]interface{} `json:"new_value,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	RequestID      string                 `json:"request_id,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Appender is what components depend on to record actions.
type Appender interface {
	Append(ctx context.Context, entry *Entry)
}

// Config holds configuration for the async logger
type Config struct {
	// DB receives batched inserts. Nil drops entries after masking, which
	// is only useful with test mode.
	DB            BatchSender
	BufferSize    int
	FlushInterval time.Duration
	BatchSize     int
	// SensitiveFields are masked in old/new/metadata values by substring match.
	SensitiveFields []string
}

// BatchSender is satisfied by *pgxpool.Pool.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// DefaultConfig returns default configuration
func DefaultConfig(db BatchSender) *Config {
	return &Config{
		DB:              db,
		BufferSize:      1000,
		FlushInterval:   2 * time.Second,
		BatchSize:       100,
		SensitiveFields: DefaultSensitiveFields(),
	}
}

// DefaultSensitiveFields lists keys never written to the audit trail verbatim.
func DefaultSensitiveFields() []string {
	return []string{"password", "secret", "token", "encryption_key", "api_key"}
}

// Logger is the fire-and-forget Appender backed by a buffered worker.
type Logger struct {
	config    *Config
	log       *logger.Logger
	buffer    chan *Entry
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool

	testMode    bool
	testEntries []*Entry
	testMu      sync.Mutex
}

// NewLogger starts the background worker.
func NewLogger(config *Config, log *logger.Logger) *Logger {
	if config == nil {
		config = DefaultConfig(nil)
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 2 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.SensitiveFields == nil {
		config.SensitiveFields = DefaultSensitiveFields()
	}
	if log == nil {
		log = logger.Nop()
	}

	l := &Logger{
		config: config,
		log:    log.Named("audit"),
		buffer: make(chan *Entry, config.BufferSize),
	}
	l.wg.Add(1)
	go l.worker()
	return l
}

// Append prepares entry and queues it. It never blocks; a full buffer drops
// the entry with an error log.
func (l *Logger) Append(ctx context.Context, entry *Entry) {
	if entry == nil {
		return
	}
	Prepare(ctx, entry, l.config.SensitiveFields)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.log.Error("audit logger closed, entry dropped", zap.String("action", string(entry.Action)))
		return
	}

	select {
	case l.buffer <- entry:
	default:
		l.log.Error("audit buffer full, entry dropped",
			zap.String("action", string(entry.Action)),
			zap.String("actor_user_id", entry.ActorID),
		)
	}
}

// Close flushes pending entries and stops the worker. Safe to call twice.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.buffer)
		l.mu.Unlock()
		l.wg.Wait()
	})
	return nil
}

// SetTestMode collects flushed entries in memory instead of writing them.
func (l *Logger) SetTestMode(enabled bool) {
	l.testMu.Lock()
	defer l.testMu.Unlock()
	l.testMode = enabled
	if enabled {
		l.testEntries = make([]*Entry, 0)
	}
}

// GetTestEntries returns the entries flushed so far in test mode.
func (l *Logger) GetTestEntries() []*Entry {
	l.testMu.Lock()
	defer l.testMu.Unlock()
	out := make([]*Entry, len(l.testEntries))
	copy(out, l.testEntries)
	return out
}

func (l *Logger) worker() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, l.config.BatchSize)
	for {
		select {
		case entry, ok := <-l.buffer:
			if !ok {
				l.flush(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= l.config.BatchSize {
				l.flush(batch)
				batch = make([]*Entry, 0, l.config.BatchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = make([]*Entry, 0, l.config.BatchSize)
			}
		}
	}
}

func (l *Logger) flush(entries []*Entry) {
	if len(entries) == 0 {
		return
	}

	l.testMu.Lock()
	if l.testMode {
		l.testEntries = append(l.testEntries, entries...)
		l.testMu.Unlock()
		return
	}
	l.testMu.Unlock()

	if l.config.DB == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertSQL, insertArgs(e)...)
	}

	br := l.config.DB.SendBatch(ctx, batch)
	defer br.Close()
	for _, e := range entries {
		if _, err := br.Exec(); err != nil {
			l.log.Error("audit insert failed",
				zap.String("action", string(e.Action)),
				zap.String("entry_id", e.ID),
				zap.Error(err),
			)
		}
	}
}

const insertSQL = `
	INSERT INTO platform_audit_logs (
		id, actor_user_id, action_type, target_tenant_id, target_user_id,
		description, old_value, new_value, metadata, request_id, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func insertArgs(e *Entry) []interface{} {
	return []interface{}{
		e.ID, nullIfEmpty(e.ActorID), string(e.Action), e.TargetTenantID, e.TargetUserID,
		e.Description, jsonOrNil(e.OldValue), jsonOrNil(e.NewValue), jsonOrEmpty(e.Metadata),
		nullIfEmpty(e.RequestID), e.CreatedAt,
	}
}

// InsertTx writes entry through q, typically an open pgx.Tx, so it shares
// the fate of the surrounding change.
func InsertTx(ctx context.Context, q database.Querier, entry *Entry) error {
	Prepare(ctx, entry, DefaultSensitiveFields())
	_, err := q.Exec(ctx, insertSQL, insertArgs(entry)...)
	return err
}

// Prepare fills id, timestamp and request id and masks sensitive values.
func Prepare(ctx context.Context, entry *Entry, sensitive []string) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.RequestID == "" && ctx != nil {
		if rid, ok := ctx.Value(logger.RequestIDKey).(string); ok {
			entry.RequestID = rid
		}
	}
	entry.OldValue = maskSensitiveFields(entry.OldValue, sensitive)
	entry.NewValue = maskSensitiveFields(entry.NewValue, sensitive)
	entry.Metadata = maskSensitiveFields(entry.Metadata, sensitive)
}

// maskSensitiveFields returns a copy of data with sensitive keys redacted.
func maskSensitiveFields(data map[string]interface{}, sensitiveFields []string) map[string]interface{} {
	if data == nil {
		return nil
	}

	result := make(map[string]interface{}, len(data))
	for k, v := range data {
		lowKey := strings.ToLower(k)
		masked := false
		for _, sf := range sensitiveFields {
			if strings.Contains(lowKey, strings.ToLower(sf)) {
				result[k] = "[REDACTED]"
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			result[k] = maskSensitiveFields(nested, sensitiveFields)
		} else {
			result[k] = v
		}
	}
	return result
}

// Changes computes the per-field difference between two snapshots.
func Changes(oldVals, newVals map[string]interface{}) map[string]interface{} {
	changes := make(map[string]interface{})
	for k, newV := range newVals {
		oldV, exists := oldVals[k]
		if !exists || !jsonEqual(oldV, newV) {
			changes[k] = map[string]interface{}{"old": oldV, "new": newV}
		}
	}
	for k, oldV := range oldVals {
		if _, exists := newVals[k]; !exists {
			changes[k] = map[string]interface{}{"old": oldV, "new": nil}
		}
	}
	return changes
}

func jsonEqual(a, b interface{}) bool {
	aJSON, err1 := json.Marshal(a)
	bJSON, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(aJSON) == string(bJSON)
}

func jsonOrNil(m map[string]interface{}) []byte {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

func jsonOrEmpty(m map[string]interface{}) []byte {
	if b := jsonOrNil(m); b != nil {
		return b
	}
	return []byte("{}")
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringPtr is a helper for optional target fields.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
