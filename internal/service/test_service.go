package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openprep/testprep-backend/internal/config"
	"github.com/openprep/testprep-backend/internal/model"
	"github.com/openprep/testprep-backend/internal/repository"
)

// ErrTestNotAvailable is returned when a test does not exist or is not
// open for attempts.
var ErrTestNotAvailable = errors.New("test not available for attempts")

// TestService loads and caches test definitions. Published definitions are
// kept whole in Redis so that attempt starts never hit PostgreSQL on the
// hot path.
type TestService struct {
	testRepo *repository.TestRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewTestService creates a new TestService.
func NewTestService(testRepo *repository.TestRepository, rdb *redis.Client, log zerolog.Logger) *TestService {
	return &TestService{
		testRepo: testRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "test_service").Logger(),
	}
}

// GetDefinition returns the full definition of a published test, Redis
// first with PostgreSQL failover. A cache miss rewarms the cache.
func (s *TestService) GetDefinition(ctx context.Context, testID uuid.UUID) (*model.TestDefinition, error) {
	key := config.CacheKey.TestDefinitionKey(testID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		def := &model.TestDefinition{}
		if err := json.Unmarshal(data, def); err == nil {
			return def, nil
		}
		// Corrupt cache entry: fall through to the database.
		s.log.Warn().Str("test_id", testID.String()).Msg("Corrupt cached definition, reloading")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Redis unavailable, reading from database")
	}

	def, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, ErrTestNotAvailable
	}
	if def.Status != model.TestStatusPublished {
		return nil, ErrTestNotAvailable
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("malformed test %s: %w", testID, err)
	}

	if err := s.WarmTestCache(ctx, def); err != nil {
		s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Failed to rewarm cache")
	}
	return def, nil
}

// ListPublished returns all tests currently open for attempts.
func (s *TestService) ListPublished(ctx context.Context) ([]model.TestDefinition, error) {
	return s.testRepo.ListPublished(ctx)
}

// Create validates and stores a new test definition.
func (s *TestService) Create(ctx context.Context, def *model.TestDefinition) error {
	return s.testRepo.Create(ctx, def)
}

// Publish opens a test for attempts and warms its cache.
func (s *TestService) Publish(ctx context.Context, testID uuid.UUID) error {
	def, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("refusing to publish malformed test: %w", err)
	}
	if err := s.testRepo.UpdateStatus(ctx, testID, model.TestStatusPublished); err != nil {
		return err
	}
	def.Status = model.TestStatusPublished
	return s.WarmTestCache(ctx, def)
}

// WarmTestCache loads a validated definition into Redis: the full document
// for attempt construction plus the duration for cheap timer recovery.
func (s *TestService) WarmTestCache(ctx context.Context, def *model.TestDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.TestDefinitionKey(def.ID.String()), data, 0)
	pipe.Set(ctx, config.CacheKey.TestDurationKey(def.ID.String()), strconv.Itoa(def.DurationMinutes), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("test_id", def.ID.String()).
		Int("questions", def.QuestionCount()).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published tests into Redis on startup so the
// first wave of attempt starts never lazy-loads under load.
func (s *TestService) PrewarmAllCaches(ctx context.Context) error {
	defs, err := s.testRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published tests: %w", err)
	}

	if len(defs) == 0 {
		s.log.Info().Msg("No published tests to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(defs)).Msg("Prewarming published tests...")

	warmed := 0
	for i := range defs {
		if err := defs[i].Validate(); err != nil {
			s.log.Warn().
				Err(err).
				Str("test_id", defs[i].ID.String()).
				Msg("Malformed published test, skipping")
			continue
		}
		if err := s.WarmTestCache(ctx, &defs[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("test_id", defs[i].ID.String()).
				Msg("Failed to warm test, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(defs)).
		Msg("Prewarming complete")
	return nil
}

// DurationMinutes returns a test's duration from the light Redis key,
// falling back to the full definition on a miss.
func (s *TestService) DurationMinutes(ctx context.Context, testID uuid.UUID) (int, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.TestDurationKey(testID.String())).Result()
	if err == nil {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			return n, nil
		}
	}
	def, err := s.GetDefinition(ctx, testID)
	if err != nil {
		return 0, err
	}
	return def.DurationMinutes, nil
}
