// Package siptest sends one-shot SIP OPTIONS probes to trunk endpoints so
// operators can check vendor reachability before routing traffic through a
// newly configured trunk.
package siptest

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
)

// probeTimeout bounds a single OPTIONS round trip, including the digest
// retry when the endpoint challenges.
const probeTimeout = 5 * time.Second

// Target is the endpoint to probe. Address is host or host:port; the
// standard SIP port is assumed when none is given. Credentials are optional
// and only used if the endpoint answers with an auth challenge.
type Target struct {
	Address   string
	Transport string // udp|tcp|tls, defaults to udp
	Username  string
	Password  string
}

// Result reports the outcome of a probe.
type Result struct {
	Reachable  bool          `json:"reachable"`
	StatusCode int           `json:"status_code,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	RTT        time.Duration `json:"-"`
	RTTMillis  int64         `json:"rtt_ms"`
	Error      string        `json:"error,omitempty"`
}

// Prober sends OPTIONS pings from a shared local user agent.
type Prober struct {
	ua     *sipgo.UserAgent
	logger *slog.Logger
}

// NewProber creates a Prober on a fresh user agent.
func NewProber(logger *slog.Logger) (*Prober, error) {
	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("creating sip user agent: %w", err)
	}
	return &Prober{ua: ua, logger: logger.With("subsystem", "sip-probe")}, nil
}

// Close releases the underlying user agent.
func (p *Prober) Close() error {
	return p.ua.Close()
}

// Probe sends a single OPTIONS request and waits for the first final
// response. A 401/407 challenge is answered once with digest credentials
// when the target carries them. Network-level failures come back inside
// the Result rather than as an error; an error means the probe itself
// could not be assembled.
func (p *Prober) Probe(ctx context.Context, target Target) (*Result, error) {
	addr, transport, err := normalizeTarget(target.Address, target.Transport)
	if err != nil {
		return nil, err
	}

	client, err := sipgo.NewClient(p.ua,
		sipgo.WithClientLogger(p.logger.With("target", addr)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sip client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	recipientStr := "sip:" + addr
	var recipient sip.Uri
	if err := sip.ParseUri(recipientStr, &recipient); err != nil {
		return nil, fmt.Errorf("parsing recipient uri: %w", err)
	}

	req := sip.NewRequest(sip.OPTIONS, recipient)
	req.SetTransport(transport)

	started := time.Now()
	res, err := p.roundTrip(ctx, client, req)
	if err != nil {
		return failedResult(started, err), nil
	}

	if (res.StatusCode == 401 || res.StatusCode == 407) && target.Username != "" {
		res, err = p.retryWithDigest(ctx, client, req, res, recipientStr, target)
		if err != nil {
			return failedResult(started, err), nil
		}
	}

	rtt := time.Since(started)
	result := &Result{
		Reachable:  res.StatusCode >= 200 && res.StatusCode < 300,
		StatusCode: int(res.StatusCode),
		Reason:     res.Reason,
		RTT:        rtt,
		RTTMillis:  rtt.Milliseconds(),
	}
	if !result.Reachable {
		result.Error = fmt.Sprintf("options ping returned status %d %s", res.StatusCode, res.Reason)
	}
	return result, nil
}

// retryWithDigest answers an auth challenge once. A second challenge means
// the credentials are wrong and the response is returned as-is.
func (p *Prober) retryWithDigest(ctx context.Context, client *sipgo.Client, req *sip.Request, res *sip.Response, uri string, target Target) (*sip.Response, error) {
	authHeader := "WWW-Authenticate"
	authzHeader := "Authorization"
	if res.StatusCode == 407 {
		authHeader = "Proxy-Authenticate"
		authzHeader = "Proxy-Authorization"
	}

	challengeHdr := res.GetHeader(authHeader)
	if challengeHdr == nil {
		return nil, fmt.Errorf("received %d but no %s header", res.StatusCode, authHeader)
	}
	chal, err := digest.ParseChallenge(challengeHdr.Value())
	if err != nil {
		return nil, fmt.Errorf("parsing auth challenge: %w", err)
	}
	cred, err := digest.Digest(chal, digest.Options{
		Method:   req.Method.String(),
		URI:      uri,
		Username: target.Username,
		Password: target.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("computing digest: %w", err)
	}

	authReq := req.Clone()
	authReq.RemoveHeader("Via")
	authReq.AppendHeader(sip.NewHeader(authzHeader, cred.String()))

	return p.roundTripWith(ctx, client, authReq,
		sipgo.ClientRequestIncreaseCSEQ,
		sipgo.ClientRequestAddVia,
	)
}

func (p *Prober) roundTrip(ctx context.Context, client *sipgo.Client, req *sip.Request) (*sip.Response, error) {
	return p.roundTripWith(ctx, client, req, sipgo.ClientRequestBuild)
}

func (p *Prober) roundTripWith(ctx context.Context, client *sipgo.Client, req *sip.Request, opts ...sipgo.ClientRequestOption) (*sip.Response, error) {
	tx, err := client.TransactionRequest(ctx, req, opts...)
	if err != nil {
		return nil, fmt.Errorf("sending options: %w", err)
	}
	defer tx.Terminate()

	return awaitFinal(ctx, tx)
}

// responseStream is the slice of sip.ClientTransaction that awaitFinal
// consumes.
type responseStream interface {
	Done() <-chan struct{}
	Err() error
	Responses() <-chan *sip.Response
}

// awaitFinal waits for the first final response on a client transaction.
// Proxies may answer with 100 Trying before the endpoint's real response,
// so anything below 200 is absorbed and the wait continues.
func awaitFinal(ctx context.Context, tx responseStream) (*sip.Response, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tx.Done():
			return nil, fmt.Errorf("transaction terminated: %w", tx.Err())
		case res := <-tx.Responses():
			if res.StatusCode < 200 {
				continue
			}
			return res, nil
		}
	}
}

// normalizeTarget fills in the standard SIP port and the default UDP
// transport. Gateway trunk records use "auto" for unspecified transport,
// which a raw OPTIONS request cannot express.
func normalizeTarget(address, transport string) (string, string, error) {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return "", "", fmt.Errorf("probe target has no address")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "5060")
	}
	tr := strings.ToUpper(strings.TrimSpace(transport))
	if tr == "" || tr == "AUTO" {
		tr = "UDP"
	}
	return addr, tr, nil
}

func failedResult(started time.Time, err error) *Result {
	rtt := time.Since(started)
	return &Result{
		Reachable: false,
		RTT:       rtt,
		RTTMillis: rtt.Milliseconds(),
		Error:     err.Error(),
	}
}
