package sparql

import "context"

// ClientInterface is the store capability consumed by the job store and the
// export pipeline. Tests substitute mock implementations.
type ClientInterface interface {
	Select(ctx context.Context, query string) ([]Row, error)
	Update(ctx context.Context, query string) error
	ConstructTurtle(ctx context.Context, query string) ([]byte, error)
	ConstructNTriples(ctx context.Context, query string) ([]byte, error)
	InsertData(ctx context.Context, graph string, ntriples []byte) error
	CountTriples(ctx context.Context, graph string) (int, error)
}

var _ ClientInterface = (*Client)(nil)
