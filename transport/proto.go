package transport

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// twoPCResult is the wire shape of prepare_2pc/commit_2pc/abort_2pc's reply:
// a two-element tuple (ok, err_message), the same ok/err-string convention
// the teacher's StorageCallVShardError responses use.
type twoPCResult struct {
	OK      bool
	Message string
}

// DecodeMsgpack implements msgpack.CustomDecoder so callers can decode a
// 2PC reply directly into a twoPCResult instead of positional Response.Data
// indexing, mirroring the teacher's vshardStorageBucketStatResponseProto
// pattern of a hand-rolled tuple decoder.
func (r *twoPCResult) DecodeMsgpack(d *msgpack.Decoder) error {
	n, err := d.DecodeArrayLen()
	if err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("transport: protocol violation, empty 2pc reply")
	}

	if err := d.Decode(&r.OK); err != nil {
		return fmt.Errorf("transport: decoding 2pc ok flag: %w", err)
	}

	if n < 2 {
		return nil
	}

	return d.Decode(&r.Message)
}
