package tx

// EstimateTxFee returns the minimum fee for a transaction with the
// given number of inputs and outputs at the given fee rate (base units
// per byte), based on the §4.2 preimage layout excluding script bytes.
func EstimateTxFee(numInputs, numOutputs int, feeRate uint64) uint64 {
	const overhead = 8 + 4 + 4 + 8 // timestamp + input_count + output_count + fee
	const perInput = 32 + 4 + 4    // prev_hash + output_index + script_sig_len (script_sig itself varies)
	const perOutput = 8 + 4        // value + script_pubkey_len (script_pubkey itself varies)

	size := overhead + perInput*numInputs + perOutput*numOutputs
	return uint64(size) * feeRate
}

// RequiredFee returns the exact minimum fee for a fully built
// transaction at the given fee rate, based on its actual preimage size.
func RequiredFee(transaction *Transaction, feeRate uint64) uint64 {
	return uint64(len(transaction.SigningBytes())) * feeRate
}
