package fiber

// noCopy may be embedded in structs which must not be copied after
// first use, so that go vet's copylocks check flags them.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
