package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LearnerSessionKey returns the cache key for a learner's login session
func (r *CacheKeyStruct) LearnerSessionKey(learnerID int) string {
	return fmt.Sprintf("login:%d", learnerID)
}

// AttemptStartKey returns the cache key for a learner's attempt start time
func (r *CacheKeyStruct) AttemptStartKey(testID string, learnerID int) string {
	return fmt.Sprintf("learner:%d:test:%s:attempt_start", learnerID, testID)
}

// AttemptSeedKey returns the cache key for a learner's option-shuffle seed
func (r *CacheKeyStruct) AttemptSeedKey(testID string, learnerID int) string {
	return fmt.Sprintf("learner:%d:test:%s:shuffle_seed", learnerID, testID)
}

// AttemptAnswersKey returns the cache key for a learner's autosaved answers
func (r *CacheKeyStruct) AttemptAnswersKey(testID string, learnerID int) string {
	return fmt.Sprintf("learner:%d:test:%s:answers", learnerID, testID)
}

// TestDefinitionKey returns the cache key for a test's full definition
func (r *CacheKeyStruct) TestDefinitionKey(testID string) string {
	return fmt.Sprintf("test:%s:definition", testID)
}

// TestDurationKey returns the cache key for a test's duration in minutes
func (r *CacheKeyStruct) TestDurationKey(testID string) string {
	return fmt.Sprintf("test:%s:duration", testID)
}

// LearnerActiveTestKey returns the cache key for a learner's active attempt
func (r *CacheKeyStruct) LearnerActiveTestKey(learnerID int) string {
	return fmt.Sprintf("learner:%d:active_test", learnerID)
}

var CacheKey = NewCacheKeyStruct()
