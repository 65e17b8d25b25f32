package serializer

import (
	"testing"

	"github.com/ramforge/ramforge/rpc/common"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"ReadSmallPayload": {
			MsgType: common.MsgTRead,
			Payload: []byte("v"),
		},
		"ReadMediumPayload": {
			MsgType: common.MsgTRead,
			Payload: []byte("medium length value for testing serialization"),
		},
		"ReadLargePayload": {
			MsgType: common.MsgTRead,
			Payload: make([]byte, 1024), // 1KB of data
		},
		"ReadVeryLargePayload": {
			MsgType: common.MsgTRead,
			Payload: make([]byte, 1024*16), // 16KB of data
		},
		"WriteWithRules": {
			MsgType: common.MsgTWrite,
			TableID: 1,
			Payload: []byte("test-value-data"),
			Rules:   common.RejectRules{DoesntExist: true},
		},
		"MultiReadKeys": {
			MsgType: common.MsgTMultiRead,
			Keys: []common.ObjectKey{
				{TableID: 1, ObjectID: 1}, {TableID: 1, ObjectID: 2},
				{TableID: 1, ObjectID: 3}, {TableID: 1, ObjectID: 4},
			},
		},
		"RecoverComplete": {
			MsgType:         common.MsgTRecover,
			CrashedMasterID: 5,
			PartitionID:     2,
			Replicas: []common.ReplicaDescriptor{
				{SegmentID: 1, BackupLocator: "backup-1:8080", Status: 1},
				{SegmentID: 2, BackupLocator: "backup-2:8080", Status: 0},
			},
			Meta: []byte("test-meta-data-for-benchmarking"),
		},
		"ErrorMessage": {
			MsgType: common.MsgTError,
			Err:     "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					_, err := serializer.Serialize(msg)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()
	serializedData := make(map[string]map[string][]byte)

	for name, factory := range testSerializers {
		serializer := factory()
		serializedData[name] = make(map[string][]byte)

		for msgName, msg := range messages {
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}
			serializedData[name][msgName] = data
		}
	}

	for name, factory := range testSerializers {
		for msgName := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data := serializedData[name][msgName]
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var msg common.Message
					err := serializer.Deserialize(data, &msg)
					if err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize measures and reports the serialized size for each message type
func BenchmarkSize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		serializer := factory()

		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}

				b.ReportMetric(float64(len(data)), "bytes")

				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
