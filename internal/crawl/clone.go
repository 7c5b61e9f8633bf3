package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/logging"
	"github.com/hardgate/internal/retry"
)

// DefaultCloneTimeout bounds a whole clone, every strategy included.
const DefaultCloneTimeout = 300 * time.Second

// CloneOptions configures Clone.
type CloneOptions struct {
	Token    string
	Username string
	Timeout  time.Duration
	// Retry is applied to each authentication strategy separately.
	Retry retry.Config
}

// Checkout is a cloned working tree.
type Checkout struct {
	// Dir is the directory to crawl: the repository root, or the sub-path
	// named by a /tree/<branch>/<path> URL.
	Dir      string
	Root     string
	Strategy string
}

// Cleanup removes the clone.
func (c *Checkout) Cleanup() {
	if c != nil && c.Root != "" {
		os.RemoveAll(c.Root)
	}
}

type authStrategy struct {
	name string
	url  string
	auth transport.AuthMethod
}

// strategies returns the authentication attempts in order of preference.
// The x-access-token form works for GitHub app and personal tokens alike, so
// it goes first. Without a token only the anonymous attempt remains.
func strategies(repoURL, token, username string) []authStrategy {
	if token == "" {
		return []authStrategy{{name: "anonymous", url: repoURL}}
	}
	out := []authStrategy{{
		name: "token_basic_auth",
		url:  repoURL,
		auth: &githttp.BasicAuth{Username: "x-access-token", Password: token},
	}}
	if u, err := url.Parse(repoURL); err == nil && strings.HasPrefix(u.Scheme, "http") {
		u.User = url.User(token)
		out = append(out, authStrategy{name: "token_in_url", url: u.String()})
	}
	if username != "" {
		out = append(out, authStrategy{
			name: "username_token",
			url:  repoURL,
			auth: &githttp.BasicAuth{Username: username, Password: token},
		})
	}
	return out
}

// Clone shallow-clones repoURL into a temporary directory. Each strategy is
// retried with backoff before the next one is tried.
func Clone(ctx context.Context, repoURL string, opts CloneOptions) (*Checkout, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCloneTimeout
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.BaseDelay == 0 {
		opts.Retry = retry.ForClone()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	base, ref := splitTreeURL(repoURL)
	logger := logging.GetCurrentLogger()

	var errs []error
	for _, s := range strategies(base, opts.Token, opts.Username) {
		dir, err := os.MkdirTemp("", "hardgate-clone-")
		if err != nil {
			return nil, fmt.Errorf("create clone dir: %w", err)
		}
		cloneOpts := &git.CloneOptions{URL: s.url, Auth: s.auth, Depth: 1}
		if ref.Branch != "" {
			cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(ref.Branch)
			cloneOpts.SingleBranch = true
		}

		log.Info().Str("repo", base).Str("strategy", s.name).Msg("Cloning repository")
		res := retry.Do(ctx, opts.Retry, func(ctx context.Context) error {
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
			_, err := git.PlainCloneContext(ctx, dir, false, cloneOpts)
			return err
		}, logger)
		if res.Success {
			co := &Checkout{Root: dir, Dir: dir, Strategy: s.name}
			if ref.Path != "" {
				co.Dir = filepath.Join(dir, filepath.FromSlash(ref.Path))
				if _, err := os.Stat(co.Dir); err != nil {
					co.Cleanup()
					return nil, fmt.Errorf("%w: path %q not found in %s", ErrCloneFailed, ref.Path, base)
				}
			}
			log.Info().Str("repo", base).Str("strategy", s.name).Int("attempts", res.Attempts).Msg("Repository cloned")
			return co, nil
		}
		os.RemoveAll(dir)
		log.Warn().Err(res.LastError).Str("strategy", s.name).Msg("Clone strategy failed")
		errs = append(errs, fmt.Errorf("%s: %w", s.name, res.LastError))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrCloneFailed, base, errors.Join(errs...))
}

// Remote clones repoURL and crawls the checkout. The clone is removed before
// returning.
func Remote(ctx context.Context, repoURL string, clone CloneOptions, opts Options) (*Result, error) {
	co, err := Clone(ctx, repoURL, clone)
	if err != nil {
		return nil, err
	}
	defer co.Cleanup()
	return Local(co.Dir, opts)
}
