package config_test

import (
	"fmt"

	"github.com/jonwraymond/callguard/config"
)

func ExampleParse() {
	cfg, err := config.Parse([]byte(`
rateLimit:
  requestsPerMinute: 120
  burstSize: 5
circuitBreaker:
  failureThreshold: 3
`))
	if err != nil {
		panic(err)
	}

	gc := cfg.GuardConfig()
	fmt.Println(gc.RateLimit.RequestsPerMinute, gc.RateLimit.Burst)
	fmt.Println(gc.Breaker.FailureThreshold, gc.Breaker.Timeout)
	// Output:
	// 120 5
	// 3 1m0s
}
