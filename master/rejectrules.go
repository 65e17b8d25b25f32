package master

// RejectRules is the predicate a client attaches to an operation, evaluated
// against the key's live state before the operation proceeds (spec §6).
type RejectRules struct {
	Exists         bool
	DoesntExist    bool
	VersionLeGiven bool
	VersionNeGiven bool
	GivenVersion   uint64
}

// evaluate checks rr against the live state of a key: present reports
// whether a live object currently occupies the key (a tombstoned key
// counts as absent), and
// liveVersion is that record's version (VersionNonexistent if absent). It
// returns a non-nil *Error on the first violated rule, left to right, per
// §6.
func (rr RejectRules) evaluate(present bool, liveVersion uint64) *Error {
	if !present && rr.DoesntExist {
		return newError(StatusObjectDoesntExist, VersionNonexistent, "object does not exist")
	}
	if present && rr.Exists {
		return newError(StatusObjectExists, liveVersion, "object exists")
	}
	if present && rr.VersionLeGiven && liveVersion <= rr.GivenVersion {
		return newError(StatusWrongVersion, liveVersion, "live version <= given version")
	}
	if present && rr.VersionNeGiven && liveVersion != rr.GivenVersion {
		return newError(StatusWrongVersion, liveVersion, "live version != given version")
	}
	return nil
}
