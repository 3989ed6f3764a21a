package tx

import (
	"encoding/json"
	"testing"
)

// FuzzTransactionUnmarshal tests that arbitrary JSON input does not
// panic when unmarshaled into a Transaction struct.
func FuzzTransactionUnmarshal(f *testing.F) {
	f.Add([]byte(`{"timestamp":1000,"inputs":[],"outputs":[],"fee":0}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"inputs":null,"outputs":null}`))
	f.Add([]byte(`{"inputs":[{"previous_tx_hash":"00","output_index":4294967295,"script_sig":"ff"}]}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var transaction Transaction
		if err := json.Unmarshal(data, &transaction); err != nil {
			return
		}
		transaction.Validate()
		transaction.Hash()
		transaction.IsCoinbase()
	})
}
