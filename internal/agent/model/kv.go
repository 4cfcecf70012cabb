package model

import "context"

// Credential slot fields persisted per conversation. Keys are built as
// "<conversationID>:<field>" so a single flat namespace holds every slot.
const (
	FieldGeneratedPrivateKey = "generatedAccountPrivateKey"
	FieldPrivateKey          = "privateKey"
	FieldAccountAddress      = "accountAddress"
)

// KeyValueStore is the durable string key/value surface backing account
// credentials. Get reports absence through the boolean rather than an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// CredentialKey builds the storage key for a conversation's credential field.
func CredentialKey(conversationID, field string) string {
	return conversationID + ":" + field
}
