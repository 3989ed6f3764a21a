package consensus

// Subsidy returns the block reward at height: the initial subsidy
// right-shifted once per halvingInterval blocks elapsed. Height 0 gets
// the full initial subsidy; a halvingInterval of 0 disables halving.
func Subsidy(height, initialSubsidy, halvingInterval uint64) uint64 {
	if halvingInterval == 0 {
		return initialSubsidy
	}
	shifts := height / halvingInterval
	if shifts >= 64 {
		return 0
	}
	return initialSubsidy >> shifts
}
