package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"main/pkg/exception"

	"github.com/yanun0323/errors"
)

const defaultHTTPTimeout = 30 * time.Second

// fetch performs one rate-limited GET. 429, 5xx and transport errors retry in
// place through the guard's backoff budget; 401 maps to ErrAuthentication;
// any other 4xx is fatal for this run.
func fetch(ctx context.Context, client *http.Client, guard Guard, sourceID, url string, header http.Header) ([]byte, error) {
	for {
		if err := guard.Acquire(ctx, sourceID); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}
		req.Header.Set("Accept", "application/json")
		for key, values := range header {
			for _, value := range values {
				req.Header.Set(key, value)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if ferr := guard.OnFailure(sourceID, true); ferr != nil {
				return nil, errors.Wrap(ferr, "request "+url)
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				if ferr := guard.OnFailure(sourceID, true); ferr != nil {
					return nil, errors.Wrap(ferr, "read response body")
				}
				continue
			}
			guard.OnSuccess(sourceID)
			return body, nil

		case resp.StatusCode == http.StatusUnauthorized:
			return nil, errors.Wrap(exception.ErrAuthentication, "request "+url)

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			if ferr := guard.OnFailure(sourceID, true); ferr != nil {
				return nil, errors.Wrap(ferr, fmt.Sprintf("status %d from %s", resp.StatusCode, url))
			}
			continue

		default:
			return nil, errors.Wrap(exception.ErrSourceUnavailable, fmt.Sprintf("status %d from %s", resp.StatusCode, url))
		}
	}
}
