package firestoreimport

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrPermissionDenied reports credentials that cannot read the legacy project.
var ErrPermissionDenied = errors.New("firestoreimport: permission denied reading legacy project")

// Source streams the documents of a collection path such as "users/u1/diary".
type Source interface {
	Each(ctx context.Context, collectionPath string, visit func(Document) error) error
}

// FirestoreSource reads collections through the Firestore client.
type FirestoreSource struct {
	client *firestore.Client
}

// NewFirestoreSource opens a client for projectID using application default credentials.
func NewFirestoreSource(ctx context.Context, projectID string) (*FirestoreSource, error) {
	if projectID == "" {
		return nil, errors.New("firestoreimport: project id is required")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestoreimport: open client: %w", err)
	}
	return &FirestoreSource{client: client}, nil
}

// Each visits every document of collectionPath. A missing collection visits nothing.
func (s *FirestoreSource) Each(ctx context.Context, collectionPath string, visit func(Document) error) error {
	documents := s.client.Collection(collectionPath).Documents(ctx)
	defer documents.Stop()
	for {
		snapshot, err := documents.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			switch status.Code(err) {
			case codes.NotFound:
				return nil
			case codes.PermissionDenied, codes.Unauthenticated:
				return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
			default:
				return fmt.Errorf("firestoreimport: read %s: %w", collectionPath, err)
			}
		}
		if err := visit(Document{ID: snapshot.Ref.ID, Data: snapshot.Data()}); err != nil {
			return err
		}
	}
}

// Close releases the underlying client.
func (s *FirestoreSource) Close() error {
	return s.client.Close()
}
