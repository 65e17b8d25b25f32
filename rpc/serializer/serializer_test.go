package serializer

import (
	"reflect"
	"testing"

	"github.com/ramforge/ramforge/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Write request
		{
			MsgType:  common.MsgTWrite,
			TableID:  3,
			ObjectID: 42,
			Payload:  []byte("test-value"),
			Rules:    common.RejectRules{DoesntExist: true},
		},

		// Read response
		{
			MsgType: common.MsgTRead,
			Payload: []byte("test-value"),
			Version: 7,
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// MultiRead request/response with nested slices
		{
			MsgType: common.MsgTMultiRead,
			Keys: []common.ObjectKey{
				{TableID: 1, ObjectID: 10},
				{TableID: 1, ObjectID: 11},
			},
			Results: []common.MultiReadResult{
				{Status: 0, Version: 1, Payload: []byte("a")},
				{Status: 4, Version: 0, Payload: nil},
			},
		},

		// SetTablets request
		{
			MsgType: common.MsgTSetTablets,
			Tablets: []common.TabletDescriptor{
				{TableID: 1, StartID: 0, EndID: 1 << 20, State: 0, TableRef: 99},
			},
		},

		// Recover request with all fields filled
		{
			MsgType:         common.MsgTRecover,
			CrashedMasterID: 5,
			PartitionID:     2,
			Tablets: []common.TabletDescriptor{
				{TableID: 1, StartID: 0, EndID: 1024, State: 1, TableRef: 9},
			},
			Replicas: []common.ReplicaDescriptor{
				{SegmentID: 1, BackupLocator: "backup-1:8080", Status: 1},
				{SegmentID: 2, BackupLocator: "backup-2:8080", Status: 0},
			},
			Meta: []byte("test-meta-data"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTCustom; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Message with empty strings and zero values",
			msg: common.Message{
				MsgType: common.MsgTWrite,
				Payload: []byte{},
				Err:     "",
				Meta:    []byte{},
			},
		},
		{
			name: "Message with status but no payload",
			msg: common.Message{
				MsgType: common.MsgTRead,
				Status:  4,
				Payload: nil,
			},
		},
		{
			name: "Message with empty payload slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTWrite,
				TableID: 1,
				Payload: []byte{},
			},
		},
		{
			name: "Message with empty meta slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTCustom,
				Meta:    []byte{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if tc.msg.TableID != result.TableID {
				t.Errorf("TableID mismatch: expected %d, got %d", tc.msg.TableID, result.TableID)
			}
			if tc.msg.Status != result.Status {
				t.Errorf("Status mismatch: expected %d, got %d", tc.msg.Status, result.Status)
			}
			if tc.msg.Err != result.Err {
				t.Errorf("Err mismatch: expected '%s', got '%s'", tc.msg.Err, result.Err)
			}
			if tc.msg.MsgType != result.MsgType {
				t.Errorf("MsgType mismatch: expected %v, got %v", tc.msg.MsgType, result.MsgType)
			}

			if (tc.msg.Payload == nil) != (result.Payload == nil) {
				t.Errorf("Payload nil/non-nil mismatch: expected %v, got %v", tc.msg.Payload, result.Payload)
			} else if len(tc.msg.Payload) != len(result.Payload) {
				t.Errorf("Payload length mismatch: expected %d, got %d", len(tc.msg.Payload), len(result.Payload))
			}

			if (tc.msg.Meta == nil) != (result.Meta == nil) {
				t.Errorf("Meta nil/non-nil mismatch: expected %v, got %v", tc.msg.Meta, result.Meta)
			} else if len(tc.msg.Meta) != len(result.Meta) {
				t.Errorf("Meta length mismatch: expected %d, got %d", len(tc.msg.Meta), len(result.Meta))
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // Message type + 1 byte of a 2-byte flags field
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, zero flags
			expectError: false,
		},
		{
			name: "Invalid length for payload",
			// MsgType=1, flags=hasPayload, claimed length 5 but only 3 bytes follow
			data: []byte{1, byte(hasPayload >> 8), byte(hasPayload), 0, 0, 0, 5, 'a', 'b', 'c'},
			expectError: true,
		},
		{
			name: "Invalid length for meta",
			data: []byte{1, byte(hasMeta >> 8), byte(hasMeta & 0xFF), 0, 0, 0, 10},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
