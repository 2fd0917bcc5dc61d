package api

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

func NewIdempotencyKey() string {
	key, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("idem_%d_%06d", time.Now().UnixNano(), rand.Intn(1000000))
	}
	return key.String()
}
