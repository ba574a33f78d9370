// Package main provides incremental load testing for the oneshot server.
// It ramps raw TCP clients up gradually and verifies that every
// connection receives the exact configured response before the close.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oneshot-http/oneshot/pkg/oneshot"
)

// LoadTestConfig defines the configuration for the ramp-up load test
type LoadTestConfig struct {
	ServerAddr     string
	RampUpInterval time.Duration // Time between adding new clients
	ClientsPerStep int           // Number of clients to add each step
	TestDuration   time.Duration // Total test duration
	RequestTimeout time.Duration // Per-request dial and read timeout
	RequestDelay   time.Duration // Delay between requests per client
	Verbose        bool          // Log server events to stderr
}

// LoadTestResult contains the aggregated results of a load test
type LoadTestResult struct {
	TestDuration       time.Duration
	MaxClients         int
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	MismatchedReplies  int64
	MaxRPS             float64
	MaxClientsAtMaxRPS int
}

// measurement tracks a single request measurement
type measurement struct {
	timestamp time.Time
	success   bool
}

// LoadTestRunner manages the ramp-up load test
type LoadTestRunner struct {
	config    LoadTestConfig
	server    *oneshot.Server
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	result    *LoadTestResult
	startTime time.Time
	clients   int32
}

// NewLoadTestRunner creates a new load test runner
func NewLoadTestRunner(config LoadTestConfig) *LoadTestRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &LoadTestRunner{
		config: config,
		ctx:    ctx,
		cancel: cancel,
		result: &LoadTestResult{},
	}
}

// StartServer starts the oneshot server under test
func (ltr *LoadTestRunner) StartServer() error {
	serverConfig := oneshot.DefaultConfig()
	serverConfig.Addr = ltr.config.ServerAddr
	serverConfig.Multicore = true
	serverConfig.NumEventLoop = 0
	serverConfig.ReusePort = true
	if ltr.config.Verbose {
		serverConfig.Logger = log.Default()
	}

	ltr.server = oneshot.New(serverConfig)

	go func() {
		_ = ltr.server.Start() // Ignore errors for silent operation
	}()

	// Wait for the listener to come up
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", ltr.config.ServerAddr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("server %s not ready", ltr.config.ServerAddr)
}

// StopServer stops the oneshot server
func (ltr *LoadTestRunner) StopServer() error {
	if ltr.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ltr.server.Stop(ctx)
	}
	return nil
}

// RunLoadTest executes the ramp-up load test
func (ltr *LoadTestRunner) RunLoadTest() (*LoadTestResult, error) {
	ltr.startTime = time.Now()

	if err := ltr.StartServer(); err != nil {
		return nil, err
	}
	defer func() {
		_ = ltr.StopServer() // Silent shutdown
	}()

	var (
		recent []measurement
		mu     sync.Mutex
	)

	// Measure RPS over one second windows
	ltr.wg.Add(1)
	go ltr.measureRPS(&recent, &mu)

	// Ramp clients up until the test duration elapses
	go ltr.runRampUp(&recent, &mu)

	// Let in-flight requests drain before stopping the clients
	time.Sleep(ltr.config.TestDuration + 2*time.Second)

	ltr.cancel()
	ltr.wg.Wait()

	ltr.result.TestDuration = time.Since(ltr.startTime)
	ltr.result.MaxClients = int(atomic.LoadInt32(&ltr.clients))

	return ltr.result, nil
}

// runRampUp starts ClientsPerStep new clients on every tick until the
// test duration elapses
func (ltr *LoadTestRunner) runRampUp(recent *[]measurement, mu *sync.Mutex) {
	ticker := time.NewTicker(ltr.config.RampUpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ltr.ctx.Done():
			return
		case <-ticker.C:
			for i := 0; i < ltr.config.ClientsPerStep; i++ {
				atomic.AddInt32(&ltr.clients, 1)
				ltr.wg.Add(1)
				go ltr.runClient(recent, mu)
			}

			// Stop adding new clients once the test duration is reached
			if time.Since(ltr.startTime) >= ltr.config.TestDuration {
				return
			}
		}
	}
}

// measureRPS samples the success rate once per second and records the
// peak
func (ltr *LoadTestRunner) measureRPS(recent *[]measurement, mu *sync.Mutex) {
	defer ltr.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastTime := time.Now()

	for {
		select {
		case <-ltr.ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			now := time.Now()
			cutoff := now.Add(-1 * time.Second)

			successCount := 0
			for i := len(*recent) - 1; i >= 0; i-- {
				if (*recent)[i].timestamp.Before(cutoff) {
					break
				}
				if (*recent)[i].success {
					successCount++
				}
			}

			elapsed := now.Sub(lastTime).Seconds()
			if elapsed > 0 {
				rps := float64(successCount) / elapsed
				if rps > ltr.result.MaxRPS {
					ltr.result.MaxRPS = rps
					ltr.result.MaxClientsAtMaxRPS = int(atomic.LoadInt32(&ltr.clients))
				}
			}

			lastTime = now
			mu.Unlock()
		}
	}
}

// runClient performs one-shot request cycles until the test ends
func (ltr *LoadTestRunner) runClient(recent *[]measurement, mu *sync.Mutex) {
	defer ltr.wg.Done()

	request := []byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")

	for {
		select {
		case <-ltr.ctx.Done():
			return
		default:
		}

		start := time.Now()
		success := ltr.oneRequest(request)

		atomic.AddInt64(&ltr.result.TotalRequests, 1)
		if success {
			atomic.AddInt64(&ltr.result.SuccessfulRequests, 1)
		}

		mu.Lock()
		*recent = append(*recent, measurement{timestamp: start, success: success})
		// Keep only the last 1000 measurements to avoid memory growth
		if len(*recent) > 1000 {
			*recent = (*recent)[len(*recent)-1000:]
		}
		mu.Unlock()

		time.Sleep(ltr.config.RequestDelay)
	}
}

// oneRequest runs a single connect-request-response-close cycle and
// reports whether the exact expected bytes came back
func (ltr *LoadTestRunner) oneRequest(request []byte) bool {
	conn, err := net.DialTimeout("tcp", ltr.config.ServerAddr, ltr.config.RequestTimeout)
	if err != nil {
		atomic.AddInt64(&ltr.result.FailedRequests, 1)
		return false
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(ltr.config.RequestTimeout))

	if _, err := conn.Write(request); err != nil {
		atomic.AddInt64(&ltr.result.FailedRequests, 1)
		return false
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		atomic.AddInt64(&ltr.result.FailedRequests, 1)
		return false
	}

	if string(data) != oneshot.DefaultResponse {
		atomic.AddInt64(&ltr.result.MismatchedReplies, 1)
		return false
	}

	return true
}

// PrintResults prints the summarized test results
func (ltr *LoadTestRunner) PrintResults() {
	result := ltr.result

	fmt.Printf("\n=== Oneshot Load Test Results ===\n")
	fmt.Printf("Test Duration: %v\n", result.TestDuration)
	fmt.Printf("Max Clients: %d\n", result.MaxClients)
	fmt.Printf("Max RPS: %.0f (at %d clients)\n", result.MaxRPS, result.MaxClientsAtMaxRPS)
	fmt.Printf("Total Requests: %d\n", result.TotalRequests)
	fmt.Printf("Successful Requests: %d\n", result.SuccessfulRequests)
	fmt.Printf("Failed Requests: %d\n", result.FailedRequests)
	fmt.Printf("Mismatched Replies: %d\n", result.MismatchedReplies)

	overallSuccessRate := float64(0)
	if result.TotalRequests > 0 {
		overallSuccessRate = float64(result.SuccessfulRequests) / float64(result.TotalRequests) * 100
	}
	fmt.Printf("Overall Success Rate: %.2f%%\n", overallSuccessRate)

	// Test validation
	fmt.Printf("\n=== Test Validation ===\n")
	if result.MismatchedReplies > 0 {
		fmt.Printf("❌ TEST FAILED: %d connections received bytes other than the configured response\n", result.MismatchedReplies)
		fmt.Printf("Expected behavior: every answered connection gets the response verbatim, then a close.\n")
		os.Exit(1)
	}
	fmt.Printf("✅ TEST PASSED: every answered connection received the exact response\n")
}

func main() {
	var (
		serverAddr     = flag.String("addr", "localhost:3000", "Server address")
		rampUpInterval = flag.Duration("rampup", 25*time.Millisecond, "Time between adding new clients")
		clientsPerStep = flag.Int("clients", 1, "Number of clients to add each step")
		testDuration   = flag.Duration("duration", 30*time.Second, "Test duration")
		requestTimeout = flag.Duration("timeout", 3*time.Second, "Request timeout")
		requestDelay   = flag.Duration("delay", 2*time.Millisecond, "Delay between requests per client")
		verbose        = flag.Bool("verbose", false, "Log server events to stderr")
	)
	flag.Parse()

	config := LoadTestConfig{
		ServerAddr:     *serverAddr,
		RampUpInterval: *rampUpInterval,
		ClientsPerStep: *clientsPerStep,
		TestDuration:   *testDuration,
		RequestTimeout: *requestTimeout,
		RequestDelay:   *requestDelay,
		Verbose:        *verbose,
	}

	runner := NewLoadTestRunner(config)
	result, err := runner.RunLoadTest()
	if err != nil {
		log.Fatalf("Load test failed: %v", err)
	}

	runner.PrintResults()

	if result.FailedRequests > result.SuccessfulRequests {
		os.Exit(1)
	}
}
