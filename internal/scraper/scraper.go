package scraper

import (
	"errors"
)

var (
	ErrNavigation  = errors.New("page navigation failed")
	ErrEmptyPage   = errors.New("no product cards on page")
	ErrUnknownSite = errors.New("unknown site profile")
)
