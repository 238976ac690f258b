package p2p

import (
	"errors"
	"fmt"
	"strings"
)

// Evaluator turns a token such as "5000", "5k" or "4900+100" into a number.
type Evaluator interface {
	Evaluate(text string) (float64, error)
}

// Request holds the parsed details from a user's query.
type Request struct {
	Fiat       float64
	Crypto     float64
	Profit     float64
	Commission float64
	SellRate   float64
	HasSell    bool
}

var (
	errNotP2PQuery   = errors.New("not a p2p query")
	errTooManyTokens = errors.New("too many tokens")
)

const keyword = "p2p"

// parseQuery reads "fiat crypto [profit] [commission%]" or
// "fiat crypto @sellRate [commission%]". A leading "p2p" keyword is optional.
func parseQuery(query string, eval Evaluator) (Request, error) {
	tokens := strings.Fields(query)
	if len(tokens) > 0 && strings.EqualFold(tokens[0], keyword) {
		tokens = tokens[1:]
	}
	if len(tokens) < 2 {
		return Request{}, errNotP2PQuery
	}
	if len(tokens) > 4 {
		return Request{}, errTooManyTokens
	}

	var req Request
	var positional []float64
	hasCommission := false

	for _, tok := range tokens {
		switch {
		case strings.HasPrefix(tok, "@"):
			if req.HasSell {
				return Request{}, fmt.Errorf("duplicate sell rate %q", tok)
			}
			v, err := parseToken(strings.TrimPrefix(tok, "@"), eval)
			if err != nil {
				return Request{}, fmt.Errorf("sell rate: %w", err)
			}
			req.SellRate, req.HasSell = v, true
		case strings.HasSuffix(tok, "%"):
			if hasCommission {
				return Request{}, fmt.Errorf("duplicate commission %q", tok)
			}
			v, err := parseToken(strings.TrimSuffix(tok, "%"), eval)
			if err != nil {
				return Request{}, fmt.Errorf("commission: %w", err)
			}
			if v < 0 || v >= 100 {
				return Request{}, fmt.Errorf("commission %v%% out of range", v)
			}
			req.Commission, hasCommission = v, true
		default:
			v, err := parseToken(tok, eval)
			if err != nil {
				return Request{}, err
			}
			positional = append(positional, v)
		}
	}

	switch {
	case len(positional) < 2:
		return Request{}, errNotP2PQuery
	case len(positional) > 3, len(positional) == 3 && req.HasSell:
		return Request{}, errTooManyTokens
	}

	req.Fiat, req.Crypto = positional[0], positional[1]
	if len(positional) == 3 {
		req.Profit = positional[2]
	}
	if req.Fiat < 0 || req.Crypto <= 0 {
		return Request{}, fmt.Errorf("amounts must be positive: %v %v", req.Fiat, req.Crypto)
	}
	return req, nil
}

// parseToken evaluates a token, honoring a trailing k (thousands) or m
// (millions) multiplier.
func parseToken(tok string, eval Evaluator) (float64, error) {
	if tok == "" {
		return 0, errors.New("empty token")
	}
	multiplier := 1.0
	switch last := tok[len(tok)-1]; last {
	case 'k', 'K':
		multiplier, tok = 1e3, tok[:len(tok)-1]
	case 'm', 'M':
		multiplier, tok = 1e6, tok[:len(tok)-1]
	}

	v, err := eval.Evaluate(tok)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", tok, err)
	}
	return v * multiplier, nil
}
