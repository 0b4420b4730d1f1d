package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	gmailv1 "google.golang.org/api/gmail/v1"

	gc "github.com/ebuckley/mailgroom/internal/gmail"
)

// Scope selects the OAuth scope requested on first run.
type Scope int

const (
	ScopeReadonly Scope = iota
	ScopeModify
	// ScopeFull is required for permanent deletion; the modify scope
	// only covers label changes and trashing.
	ScopeFull
)

// NewGmailClient authenticates against Gmail using credentials stored
// in cfgDir and returns a gateway client. Analysis-only commands should
// request ScopeReadonly; label mutations and trashing need ScopeModify;
// permanent deletion needs ScopeFull.
func NewGmailClient(ctx context.Context, cfgDir string, scope Scope) (gc.Client, error) {
	var (
		svc *gmailv1.Service
		err error
	)
	switch scope {
	case ScopeReadonly:
		svc, err = (localcred.Provider{}).ServiceWithScopes(ctx, cfgDir, gmailv1.GmailReadonlyScope)
	case ScopeModify:
		svc, err = (localcred.Provider{}).ServiceWithScopes(ctx, cfgDir, gmailv1.GmailModifyScope)
	case ScopeFull:
		svc, err = (localcred.Provider{}).ServiceWithScopes(ctx, cfgDir, gmailv1.MailGoogleComScope)
	default:
		return nil, fmt.Errorf("unknown scope %d", scope)
	}
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGoogleAPIClient(svc), nil
}

// DefaultLogger returns the process-wide text logger on stderr.
func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
