package health

import (
	"math/rand"
	"testing"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
)

func BenchmarkRank(b *testing.B) {
	pool := endpoint.NewPool(endpoint.DefaultWindow)
	results := make([]Result, 0, 200)
	for i := 0; i < 200; i++ {
		ep, err := pool.Add("http://node-"+string(rune('a'+i%26))+string(rune('a'+i/26))+".example", endpoint.KindHTTP, nil)
		if err != nil {
			b.Fatal(err)
		}
		results = append(results, Result{Endpoint: ep, Latency: float64(rand.Intn(1000))})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Rank(results); err != nil {
			b.Fatal(err)
		}
	}
}
