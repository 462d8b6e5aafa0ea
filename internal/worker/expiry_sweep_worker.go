package worker

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openprep/testprep-backend/internal/service"
)

const (
	SweepInterval  = 30 * time.Second
	SweepScanCount = 200
)

// ExpirySweepWorker is the safety net behind the in-process timers: it
// scans Redis for attempt start keys whose deadline has passed and drives
// them to automatic submission. In normal operation the live timer fires
// first and the sweep finds nothing; after a crash or restart this is what
// finalizes attempts that expired while the process was down and whose
// learner never came back.
type ExpirySweepWorker struct {
	rdb        *redis.Client
	testSvc    *service.TestService
	attemptSvc *service.AttemptService
	log        zerolog.Logger
}

func NewExpirySweepWorker(rdb *redis.Client, testSvc *service.TestService, attemptSvc *service.AttemptService, log zerolog.Logger) *ExpirySweepWorker {
	return &ExpirySweepWorker{
		rdb:        rdb,
		testSvc:    testSvc,
		attemptSvc: attemptSvc,
		log:        log.With().Str("component", "expiry_sweep_worker").Logger(),
	}
}

func (w *ExpirySweepWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ExpirySweepWorker started")

	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpirySweepWorker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpirySweepWorker) sweep(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := w.rdb.Scan(ctx, cursor, "learner:*:attempt_start", SweepScanCount).Result()
		if err != nil {
			w.log.Error().Err(err).Msg("SCAN error")
			return
		}

		for _, key := range keys {
			w.checkKey(ctx, key)
		}

		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// checkKey inspects one attempt start key and finalizes the attempt if its
// deadline has passed. Keys are "learner:<id>:test:<uuid>:attempt_start".
func (w *ExpirySweepWorker) checkKey(ctx context.Context, key string) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 {
		return
	}
	userID, err := strconv.Atoi(parts[1])
	if err != nil {
		return
	}
	testID, err := uuid.Parse(parts[3])
	if err != nil {
		return
	}

	startRaw, err := w.rdb.Get(ctx, key).Result()
	if err != nil {
		// Key vanished between SCAN and GET: the attempt was submitted.
		return
	}
	startUnix, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil {
		w.log.Warn().Str("key", key).Msg("Corrupt attempt start value")
		return
	}

	duration, err := w.testSvc.DurationMinutes(ctx, testID)
	if err != nil {
		w.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Cannot resolve test duration")
		return
	}

	deadline := time.Unix(startUnix, 0).Add(time.Duration(duration) * time.Minute)
	if time.Now().Before(deadline) {
		return
	}

	started, err := w.attemptSvc.FinalizeIfExpired(ctx, testID, userID)
	if err != nil {
		w.log.Error().Err(err).
			Str("test_id", testID.String()).
			Int("user_id", userID).
			Msg("Failed to finalize expired attempt")
		return
	}
	if started {
		w.log.Info().
			Str("test_id", testID.String()).
			Int("user_id", userID).
			Msg("Swept expired attempt to submission")
	}
}
