package queue

import "context"

// EnvelopeEncoder can serialize itself for storage. This is satisfied by
// *session.Envelope without requiring a direct import of that package.
type EnvelopeEncoder interface {
	Encode() (string, error)
}

// PersistEnvelope encodes env and writes the result to item via store.Update.
// On success the updated item fields (including any store-generated values)
// are written back through the item pointer. Returns a non-nil error when
// encoding or persistence fails; callers decide how to log the result.
func PersistEnvelope(ctx context.Context, store *Store, item *Item, env EnvelopeEncoder) error {
	encoded, err := env.Encode()
	if err != nil {
		return err
	}
	copy := *item
	copy.EnvelopeData = encoded
	if store != nil {
		if err := store.Update(ctx, &copy); err != nil {
			return err
		}
	}
	*item = copy
	return nil
}
