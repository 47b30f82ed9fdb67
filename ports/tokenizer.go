package ports

import "github.com/chainsona/cpop-sub000/core"

// Tokenizer converts framework sessions to and from their cookie tokens
type Tokenizer interface {
	SessionToToken(session *core.Session) (string, error)
	TokenToSession(token string) (*core.Session, error)
}
