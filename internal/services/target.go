package services

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/engagemarket/backend/internal/models"
)

var handlePattern = regexp.MustCompile(`^@?[A-Za-z0-9._]{1,30}$`)

// TargetSeparator splits the post URLs of a like, comment or repost target.
const TargetSeparator = "|"

// ValidateTarget checks what a contract points at: an account handle for
// follows, one or more http(s) post URLs for every other service.
func ValidateTarget(service models.ServiceType, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("%w: empty target", ErrInvalidTarget)
	}

	if service == models.ServiceFollow {
		if !handlePattern.MatchString(target) {
			return fmt.Errorf("%w: %q is not an account handle", ErrInvalidTarget, target)
		}
		return nil
	}

	for _, raw := range strings.Split(target, TargetSeparator) {
		if err := validatePostURL(strings.TrimSpace(raw)); err != nil {
			return err
		}
	}
	return nil
}

func validatePostURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not a post URL", ErrInvalidTarget, raw)
	}
	return nil
}
