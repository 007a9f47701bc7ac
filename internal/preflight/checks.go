package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sys/unix"

	"vidresolve/internal/provider"
)

// sentinelAssetID is looked up to prove the provider answers authenticated
// requests; a 404 is the expected reply.
const sentinelAssetID = "vidresolve-preflight-check"

// CheckProvider verifies that the provider lookup API is reachable and
// accepts the configured credentials.
func CheckProvider(ctx context.Context, baseURL, tokenID, tokenSecret string, fetcher provider.Fetcher) Result {
	const name = "Provider API"

	if strings.TrimSpace(baseURL) == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	if strings.TrimSpace(tokenID) == "" || strings.TrimSpace(tokenSecret) == "" {
		return Result{Name: name, Detail: "missing token id or secret"}
	}
	if fetcher == nil {
		return Result{Name: name, Detail: "client not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := fetcher.FetchAsset(checkCtx, sentinelAssetID)
	var statusErr *provider.StatusError
	switch {
	case err == nil, errors.Is(err, provider.ErrNotFound):
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case errors.As(err, &statusErr) && statusErr.Unauthorized():
		return Result{Name: name, Detail: "auth failed (check token id and secret)"}
	default:
		return Result{Name: name, Detail: summarizeError(err)}
	}
}

// CheckStore verifies the record database answers.
func CheckStore(ctx context.Context, store Pinger) Result {
	const name = "Record store"

	if store == nil {
		return Result{Name: name, Detail: "not opened"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", store.Driver(), err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (ok)", store.Driver())}
}

// CheckAMQP verifies the notification broker accepts a connection.
func CheckAMQP(ctx context.Context, url string) Result {
	const name = "AMQP broker"

	dial := func(network, addr string) (net.Conn, error) {
		dialer := net.Dialer{Timeout: 5 * time.Second}
		return dialer.DialContext(ctx, network, addr)
	}
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: dial})
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	defer conn.Close()
	return Result{Name: name, Passed: true, Detail: "Connected"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}
