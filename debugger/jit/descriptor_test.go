package jit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	. "github.com/pattyshack/jitdbg/debugger/common"
)

const (
	testDescriptorAddress = VirtualAddress(0x5000)
	testEntryAddress      = VirtualAddress(0x6000)
	testSymfileAddress    = VirtualAddress(0x7000)
)

// fakeTracee simulates a tracee's address space and symbol table.
type fakeTracee struct {
	symbols map[string]VirtualAddress

	content map[VirtualAddress][]byte

	failReadsAt map[VirtualAddress]struct{}
}

func newFakeTracee() *fakeTracee {
	return &fakeTracee{
		symbols: map[string]VirtualAddress{
			DescriptorSymbol: testDescriptorAddress,
		},
		content:     map[VirtualAddress][]byte{},
		failReadsAt: map[VirtualAddress]struct{}{},
	}
}

func (tracee *fakeTracee) setDescriptor(
	action uint32,
	relevantEntry VirtualAddress,
) {
	buffer := make([]byte, 16)
	binary.LittleEndian.PutUint32(buffer, 1) // version
	binary.LittleEndian.PutUint32(buffer[4:], action)
	binary.LittleEndian.PutUint64(buffer[8:], uint64(relevantEntry))
	tracee.content[testDescriptorAddress] = buffer
}

func (tracee *fakeTracee) setCodeEntry(
	symfileAddress VirtualAddress,
	symfileSize uint64,
) {
	buffer := make([]byte, 32)
	binary.LittleEndian.PutUint64(buffer[16:], uint64(symfileAddress))
	binary.LittleEndian.PutUint64(buffer[24:], symfileSize)
	tracee.content[testEntryAddress] = buffer
}

func (tracee *fakeTracee) setSymfile(blob string) {
	tracee.content[testSymfileAddress] = []byte(blob)
	tracee.setCodeEntry(testSymfileAddress, uint64(len(blob)))
}

func (tracee *fakeTracee) ReadBytes(
	address VirtualAddress,
	buffer []byte,
) error {
	if _, ok := tracee.failReadsAt[address]; ok {
		return fmt.Errorf("%w: fault at %s", ErrMemoryRead, address)
	}

	for start, content := range tracee.content {
		offset := int64(address) - int64(start)
		if offset < 0 || offset+int64(len(buffer)) > int64(len(content)) {
			continue
		}

		copy(buffer, content[offset:])
		return nil
	}

	return fmt.Errorf("%w: unmapped address %s", ErrMemoryRead, address)
}

func (tracee *fakeTracee) ReadUint(
	address VirtualAddress,
	byteSize int,
) (
	uint64,
	error,
) {
	buffer := make([]byte, byteSize)
	err := tracee.ReadBytes(address, buffer)
	if err != nil {
		return 0, err
	}

	switch byteSize {
	case 4:
		return uint64(binary.LittleEndian.Uint32(buffer)), nil
	case 8:
		return binary.LittleEndian.Uint64(buffer), nil
	default:
		return 0, fmt.Errorf("unsupported byte size (%d)", byteSize)
	}
}

func (tracee *fakeTracee) ReadPointer(
	address VirtualAddress,
) (
	VirtualAddress,
	error,
) {
	value, err := tracee.ReadUint(address, 8)
	return VirtualAddress(value), err
}

func (tracee *fakeTracee) PointerSize() int {
	return 8
}

func (tracee *fakeTracee) ResolveDataSymbol(
	name string,
) (
	VirtualAddress,
	bool,
) {
	address, ok := tracee.symbols[name]
	return address, ok
}

type DescriptorSuite struct{}

func TestDescriptor(t *testing.T) {
	suite.RunTests(t, &DescriptorSuite{})
}

func (DescriptorSuite) TestMissingDescriptorSymbol(t *testing.T) {
	tracee := newFakeTracee()
	delete(tracee.symbols, DescriptorSymbol)

	_, err := ReadNewestSymfile(tracee)
	expect.True(t, errors.Is(err, ErrSymbolNotFound))
}

func (DescriptorSuite) TestDescriptorReadFailure(t *testing.T) {
	tracee := newFakeTracee()

	_, err := ReadNewestSymfile(tracee)
	expect.True(t, errors.Is(err, ErrMemoryRead))
}

func (DescriptorSuite) TestNonRegistrationActionSkipped(t *testing.T) {
	tracee := newFakeTracee()
	tracee.setSymfile("name: Foo\nstart: 0x1000\nsize: 64\n")
	tracee.setDescriptor(2, testEntryAddress) // JIT_UNREGISTER_FN

	blob, err := ReadNewestSymfile(tracee)
	expect.Nil(t, err)
	expect.Nil(t, blob)
}

func (DescriptorSuite) TestNullRelevantEntrySkipped(t *testing.T) {
	tracee := newFakeTracee()
	tracee.setDescriptor(actionRegisterFunction, 0)

	blob, err := ReadNewestSymfile(tracee)
	expect.Nil(t, err)
	expect.Nil(t, blob)
}

func (DescriptorSuite) TestEmptySymfileSkipped(t *testing.T) {
	tracee := newFakeTracee()
	tracee.setCodeEntry(testSymfileAddress, 0)
	tracee.setDescriptor(actionRegisterFunction, testEntryAddress)

	blob, err := ReadNewestSymfile(tracee)
	expect.Nil(t, err)
	expect.Nil(t, blob)
}

func (DescriptorSuite) TestImplausibleSymfileSizeRejected(t *testing.T) {
	tracee := newFakeTracee()
	tracee.setCodeEntry(testSymfileAddress, maxSymfileSize+1)
	tracee.setDescriptor(actionRegisterFunction, testEntryAddress)

	_, err := ReadNewestSymfile(tracee)
	expect.True(t, errors.Is(err, ErrMalformedDescriptor))
}

func (DescriptorSuite) TestSymfileReadFailure(t *testing.T) {
	tracee := newFakeTracee()
	tracee.setSymfile("name: Foo\n")
	tracee.setDescriptor(actionRegisterFunction, testEntryAddress)
	tracee.failReadsAt[testSymfileAddress] = struct{}{}

	_, err := ReadNewestSymfile(tracee)
	expect.True(t, errors.Is(err, ErrMemoryRead))
}

func (DescriptorSuite) TestDecodeNewestSymfile(t *testing.T) {
	tracee := newFakeTracee()
	tracee.setSymfile("---\nname: Foo\nstart: 0x1000\nsize: 64\nfile: a.dart\n")
	tracee.setDescriptor(actionRegisterFunction, testEntryAddress)

	blob, err := ReadNewestSymfile(tracee)
	expect.Nil(t, err)
	expect.NotNil(t, blob)

	info := ParseSymfile(blob)
	expect.Equal(t, VirtualAddress(0x1000), info.Address)
	expect.Equal(t, uint64(64), info.Size)
	expect.Equal(t, "Foo", info.Name)
	expect.Equal(t, "a.dart", info.File)
}
