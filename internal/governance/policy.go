package governance

// Policy decides whether a general proposal has drawn enough distinct votes
// to become a custodial matter.
type Policy func(votes, members uint64, percent uint32) bool

// Escalates is the default policy: votes must reach percent of the current
// membership. With 10 members at 40 it fires on the fourth vote.
func Escalates(votes, members uint64, percent uint32) bool {
	return members > 0 && votes*100 >= uint64(percent)*members
}
