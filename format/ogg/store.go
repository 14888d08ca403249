package ogg

// codecStore owns the codec states of the current link. It is not locked
// itself; Demuxer guards it with its mutex.
type codecStore struct {
	states map[uint32]*CodecState
}

func newCodecStore() *codecStore {
	return &codecStore{states: make(map[uint32]*CodecState)}
}

func (self *codecStore) add(st *CodecState) {
	self.states[st.Serial] = st
}

func (self *codecStore) get(serial uint32) *CodecState {
	return self.states[serial]
}

func (self *codecStore) contains(serial uint32) bool {
	_, ok := self.states[serial]
	return ok
}

func (self *codecStore) clear() {
	self.states = make(map[uint32]*CodecState)
}
