package main

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type failConfig struct {
	rate float64
	code int
}

var (
	faultRandMu sync.Mutex
	faultRand   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func shouldFail(rate float64) bool {
	if rate <= 0 {
		return false
	}
	faultRandMu.Lock()
	defer faultRandMu.Unlock()
	return faultRand.Float64() < rate
}

// withFaults delays every API request and fails a share of them.
func withFaults(delay time.Duration, failCfg failConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-r.Context().Done():
					return
				}
			}
			if shouldFail(failCfg.rate) {
				status := failCfg.code
				if status == 0 {
					status = http.StatusInternalServerError
				}
				http.Error(w, "failure injected", status)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseFailConfig(raw string) (failConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return failConfig{}, nil
	}
	cfg := failConfig{code: http.StatusInternalServerError}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		keyVal := strings.SplitN(part, "=", 2)
		if len(keyVal) != 2 {
			return failConfig{}, errors.Errorf("invalid fail segment %q", part)
		}
		value := strings.TrimSpace(keyVal[1])
		switch strings.TrimSpace(keyVal[0]) {
		case "rate":
			val, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return failConfig{}, errors.WithStack(err)
			}
			if val < 0 || val > 1 {
				return failConfig{}, errors.Errorf("fail rate %v outside [0, 1]", val)
			}
			cfg.rate = val
		case "code":
			val, err := strconv.Atoi(value)
			if err != nil {
				return failConfig{}, errors.WithStack(err)
			}
			if val < 100 || val > 599 {
				return failConfig{}, errors.Errorf("fail code %d is not an HTTP status", val)
			}
			cfg.code = val
		default:
			return failConfig{}, errors.Errorf("unknown fail key %q", keyVal[0])
		}
	}
	return cfg, nil
}
