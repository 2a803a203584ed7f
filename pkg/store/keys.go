package store

import (
	"fmt"
	"strings"
)

// Key layout. Users, conversations and messages live in separate
// namespaces; index keys point at primary keys. Message keys embed a
// zero-padded timestamp and a sequence number so ascending key order is
// the deterministic log order.

func UserKey(id string) string          { return "user:id:" + id }
func UserExternalKey(ext string) string { return "user:ext:" + ext }
func UserEmailKey(email string) string  { return "user:email:" + strings.ToLower(email) }
func UserNameKey(name string) string    { return "user:name:" + strings.ToLower(name) }

const UserPrefix = "user:id:"

func ConvKey(id string) string { return "conv:" + id + ":meta" }

func ConvMsgPrefix(convID string) string { return "conv:" + convID + ":msg:" }

// ConvMsgKey builds a message storage key; ts is unix ms and seq breaks
// ties within the same millisecond.
func ConvMsgKey(convID string, ts int64, seq uint64) string {
	return fmt.Sprintf("conv:%s:msg:%020d-%06d", convID, ts, seq)
}

// DirectIndexKey is the unique key for a canonical (sorted) direct pair.
func DirectIndexKey(a, b string) string { return "direct:" + a + "|" + b }

// MsgIndexKey maps a message id to its storage key.
func MsgIndexKey(msgID string) string { return "msgidx:" + msgID }

// UserConvKey marks membership of a user in a conversation.
func UserConvKey(userID, convID string) string { return "uconv:" + userID + ":" + convID }

func UserConvPrefix(userID string) string { return "uconv:" + userID + ":" }

func SearchKey(searcherID, searchedID string) string {
	return "search:" + searcherID + ":" + searchedID
}

func SearchPrefix(searcherID string) string { return "search:" + searcherID + ":" }
