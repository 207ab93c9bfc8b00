package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/insts"
	"github.com/sarchlab/rv32sim/loader"
	"github.com/sarchlab/rv32sim/timing/core"
)

const (
	machineRISCV = 243
	machine386   = 3
)

type testSegment struct {
	vaddr  uint32
	data   []byte
	memsz  uint32
	pflags uint32
}

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
	})

	code := emu.WordsToBytes([]uint32{
		insts.ADDI(insts.RegA0, 0, 42),
		insts.ECALL(),
	})

	Describe("Load", func() {
		Context("with a valid RV32 ELF binary", func() {
			var elfPath string

			BeforeEach(func() {
				elfPath = filepath.Join(tempDir, "test.elf")
				writeELF32(elfPath, machineRISCV, 0x100, []testSegment{
					{vaddr: 0x100, data: code, pflags: 0x5},
				})
			})

			It("should extract the correct entry point", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.EntryPoint).To(Equal(uint32(0x100)))
			})

			It("should read segment contents and permissions", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Segments).To(HaveLen(1))

				seg := prog.Segments[0]
				Expect(seg.VirtAddr).To(Equal(uint32(0x100)))
				Expect(seg.Data).To(Equal(code))
				Expect(seg.Flags & loader.SegmentFlagExecute).NotTo(BeZero())
				Expect(seg.Flags & loader.SegmentFlagRead).NotTo(BeZero())
				Expect(seg.Flags & loader.SegmentFlagWrite).To(BeZero())
			})

			It("should run on the core", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())

				c, err := core.NewCore(nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.LoadInto(c)).To(Succeed())
				c.SetPC(prog.EntryPoint)

				_, err = c.RunUntilHalt(0)
				Expect(err).NotTo(HaveOccurred())
				Expect(c.ExitCode()).To(Equal(int64(42)))
			})
		})

		It("should load multiple PT_LOAD segments", func() {
			elfPath := filepath.Join(tempDir, "multi.elf")
			dataData := []byte{0x01, 0x02, 0x03, 0x04}
			writeELF32(elfPath, machineRISCV, 0x0, []testSegment{
				{vaddr: 0x0, data: code, pflags: 0x5},
				{vaddr: 0x800, data: dataData, pflags: 0x6},
			})

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(HaveLen(2))
			Expect(prog.Segments[1].VirtAddr).To(Equal(uint32(0x800)))
			Expect(prog.Segments[1].Data).To(Equal(dataData))
			Expect(prog.Segments[1].Flags & loader.SegmentFlagWrite).NotTo(BeZero())
			Expect(prog.Size()).To(Equal(uint32(0x804)))
		})

		It("should zero BSS when loading", func() {
			elfPath := filepath.Join(tempDir, "bss.elf")
			writeELF32(elfPath, machineRISCV, 0x0, []testSegment{
				{vaddr: 0x200, data: []byte{1, 2, 3, 4}, memsz: 64, pflags: 0x6},
			})

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments[0].MemSize).To(Equal(uint32(64)))

			memory := emu.NewMemory(4096)
			Expect(memory.LoadProgram(0x200, bytesOf(0xFF, 64))).To(Succeed())
			Expect(prog.LoadInto(memory)).To(Succeed())

			Expect(memory.Read32(0x200)).To(Equal(uint32(0x04030201)))
			Expect(memory.Read32(0x23C)).To(BeZero())
		})

		It("should accept an ELF with no loadable segments", func() {
			elfPath := filepath.Join(tempDir, "empty.elf")
			writeELF32(elfPath, machineRISCV, 0x40, nil)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(BeEmpty())
			Expect(prog.Size()).To(BeZero())
		})

		Context("with an invalid file", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.Load("/nonexistent/path/to/file.elf")
				Expect(err).To(MatchError(ContainSubstring("failed to open")))
			})

			It("should return error for non-ELF file", func() {
				path := filepath.Join(tempDir, "not-elf.bin")
				Expect(os.WriteFile(path, []byte("not an elf file"), 0644)).To(Succeed())

				_, err := loader.Load(path)
				Expect(err).To(MatchError(ContainSubstring("ELF")))
			})

			It("should reject other machines", func() {
				path := filepath.Join(tempDir, "x86.elf")
				writeELF32(path, machine386, 0, nil)

				_, err := loader.Load(path)
				Expect(err).To(MatchError(ContainSubstring("not a RISC-V")))
			})

			It("should reject 64-bit ELF files", func() {
				path := filepath.Join(tempDir, "elf64.elf")
				writeELF64Header(path)

				_, err := loader.Load(path)
				Expect(err).To(MatchError(ContainSubstring("not a 32-bit")))
			})
		})
	})

	Describe("flat images", func() {
		It("should place the image at the base address", func() {
			path := filepath.Join(tempDir, "prog.bin")
			Expect(os.WriteFile(path, code, 0644)).To(Succeed())

			prog, err := loader.LoadFlat(path, 0x80)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.EntryPoint).To(Equal(uint32(0x80)))
			Expect(prog.Size()).To(Equal(uint32(len(code))))

			memory := emu.NewMemory(4096)
			Expect(prog.LoadInto(memory)).To(Succeed())
			Expect(memory.Read32(0x80)).To(Equal(insts.ADDI(insts.RegA0, 0, 42)))
		})

		It("should report missing files", func() {
			_, err := loader.LoadFlat(filepath.Join(tempDir, "missing.bin"), 0)
			Expect(err).To(MatchError(ContainSubstring("failed to read image file")))
		})

		It("should fail to load an image that does not fit", func() {
			prog := loader.FromWords(0xFFC, []uint32{insts.NOP(), insts.NOP()})

			err := prog.LoadInto(emu.NewMemory(4096))
			Expect(err).To(MatchError(emu.ErrOutOfRange))
		})
	})

	Describe("LoadFile", func() {
		It("should detect ELF files", func() {
			path := filepath.Join(tempDir, "auto.elf")
			writeELF32(path, machineRISCV, 0x100, []testSegment{
				{vaddr: 0x100, data: code, pflags: 0x5},
			})

			prog, err := loader.LoadFile(path, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.EntryPoint).To(Equal(uint32(0x100)))
		})

		It("should fall back to flat images", func() {
			path := filepath.Join(tempDir, "auto.bin")
			Expect(os.WriteFile(path, code, 0644)).To(Succeed())

			prog, err := loader.LoadFile(path, 0x20)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.EntryPoint).To(Equal(uint32(0x20)))
			Expect(prog.Segments[0].Data).To(Equal(code))
		})
	})
})

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

// writeELF32 writes a little-endian ELF32 executable with one PT_LOAD
// program header per segment.
func writeELF32(path string, machine uint16, entry uint32, segs []testSegment) {
	const (
		ehsize    = 52
		phentsize = 32
	)

	header := make([]byte, ehsize)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 1                                   // ELFCLASS32
	header[5] = 1                                   // little endian
	header[6] = 1                                   // version
	binary.LittleEndian.PutUint16(header[16:18], 2) // executable
	binary.LittleEndian.PutUint16(header[18:20], machine)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], entry)
	binary.LittleEndian.PutUint32(header[28:32], ehsize) // phoff
	binary.LittleEndian.PutUint16(header[40:42], ehsize)
	binary.LittleEndian.PutUint16(header[42:44], phentsize)
	binary.LittleEndian.PutUint16(header[44:46], uint16(len(segs)))
	binary.LittleEndian.PutUint16(header[46:48], 40) // shentsize

	offset := uint32(ehsize + phentsize*len(segs))
	phdrs := make([]byte, 0, phentsize*len(segs))
	var body []byte

	for _, seg := range segs {
		memsz := seg.memsz
		if memsz == 0 {
			memsz = uint32(len(seg.data))
		}

		ph := make([]byte, phentsize)
		binary.LittleEndian.PutUint32(ph[0:4], 1) // PT_LOAD
		binary.LittleEndian.PutUint32(ph[4:8], offset)
		binary.LittleEndian.PutUint32(ph[8:12], seg.vaddr)
		binary.LittleEndian.PutUint32(ph[12:16], seg.vaddr)
		binary.LittleEndian.PutUint32(ph[16:20], uint32(len(seg.data)))
		binary.LittleEndian.PutUint32(ph[20:24], memsz)
		binary.LittleEndian.PutUint32(ph[24:28], seg.pflags)
		binary.LittleEndian.PutUint32(ph[28:32], 4)

		phdrs = append(phdrs, ph...)
		body = append(body, seg.data...)
		offset += uint32(len(seg.data))
	}

	out := append(append(header, phdrs...), body...)
	Expect(os.WriteFile(path, out, 0644)).To(Succeed())
}

// writeELF64Header writes a bare ELF64 header for a RISC-V machine.
func writeELF64Header(path string) {
	header := make([]byte, 64)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2 // ELFCLASS64
	header[5] = 1
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:18], 2)
	binary.LittleEndian.PutUint16(header[18:20], machineRISCV)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint64(header[32:40], 64)
	binary.LittleEndian.PutUint16(header[52:54], 64)
	binary.LittleEndian.PutUint16(header[54:56], 56)
	binary.LittleEndian.PutUint16(header[58:60], 64)

	Expect(os.WriteFile(path, header, 0644)).To(Succeed())
}
