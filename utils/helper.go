package utils

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/mail"
	"time"

	"github.com/bsm/redislock"
	"github.com/givegrip/givegrip_backend/config"
	"github.com/go-playground/validator/v10"
)

func NewTrue() *bool {
	b := true
	return &b
}

func GenerateUniqueFilename() string {

	timestamp := time.Now().UnixNano()

	random := rand.Intn(1000)

	uniqueFilename := fmt.Sprintf("%d_%d", timestamp, random)

	return uniqueFilename
}

func NilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func IsValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

// CampaignLock obtains a short-lived distributed lock scoped to a campaign, for
// maintenance work that must not run concurrently with itself (aggregate rebuild).
// The returned release func is safe to call after the lock expired.
func CampaignLock(ctx context.Context, campaignId string, lockType string, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", campaignId, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lockKey := fmt.Sprintf("%s:%s", lockType, campaignId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for campaign", campaignId, err)
		return nil, errors.New("could not obtain lock for campaign")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for campaign", campaignId, err)
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
