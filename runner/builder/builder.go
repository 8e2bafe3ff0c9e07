package builder

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// DataType represents the precision of numerical data
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

// DefaultBlockSize is the @inner loop width used when Config.BlockSize is zero
const DefaultBlockSize = 64

// Config holds configuration for creating a Builder
type Config struct {
	FloatType DataType
	IntType   DataType
	BlockSize int
}

// Builder generates the preamble shared by every kernel of a runner: type
// definitions, the inner block size and static matrices
type Builder struct {
	FloatType DataType
	IntType   DataType
	BlockSize int

	// Static data to embed
	StaticMatrices map[string]mat.Matrix

	// Generated code
	KernelPreamble string
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) *Builder {
	if cfg.BlockSize < 0 {
		panic(fmt.Sprintf("block size must not be negative, got %d", cfg.BlockSize))
	}
	floatType := cfg.FloatType
	if floatType == 0 {
		floatType = Float64
	}
	intType := cfg.IntType
	if intType == 0 {
		intType = INT64
	}
	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	return &Builder{
		FloatType:      floatType,
		IntType:        intType,
		BlockSize:      blockSize,
		StaticMatrices: make(map[string]mat.Matrix),
	}
}

// AddStaticMatrix adds a matrix to be embedded as static const in Kernels
func (kb *Builder) AddStaticMatrix(name string, m mat.Matrix) {
	kb.StaticMatrices[name] = m
}

// NumBlocks returns the @outer loop count covering n items
func (kb *Builder) NumBlocks(n int) int {
	return (n + kb.BlockSize - 1) / kb.BlockSize
}

// GeneratePreamble generates the kernel preamble with static data and utilities
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	// 1. Type definitions and constants
	sb.WriteString(kb.generateTypeDefinitions())

	// 2. Static matrix declarations
	sb.WriteString(kb.generateStaticMatrices())

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// generateTypeDefinitions creates type definitions based on precision settings
func (kb *Builder) generateTypeDefinitions() string {
	var sb strings.Builder

	floatTypeStr := "double"
	floatSuffix := ""
	if kb.FloatType == Float32 {
		floatTypeStr = "float"
		floatSuffix = "f"
	}

	intTypeStr := "long"
	if kb.IntType == INT32 {
		intTypeStr = "int"
	}

	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", floatTypeStr))
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", intTypeStr))
	sb.WriteString(fmt.Sprintf("#define REAL_ZERO 0.0%s\n", floatSuffix))
	sb.WriteString(fmt.Sprintf("#define REAL_ONE 1.0%s\n", floatSuffix))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("#define BLOCK_SIZE %d\n", kb.BlockSize))
	sb.WriteString("\n")

	return sb.String()
}

// generateStaticMatrices converts matrices to static array initializations,
// in name order so the preamble is stable
func (kb *Builder) generateStaticMatrices() string {
	if len(kb.StaticMatrices) == 0 {
		return ""
	}
	names := make([]string, 0, len(kb.StaticMatrices))
	for name := range kb.StaticMatrices {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("// Static matrices\n")
	for _, name := range names {
		sb.WriteString(kb.formatStaticMatrix(name, kb.StaticMatrices[name]))
	}
	return sb.String()
}

// formatStaticMatrix formats a single matrix as a static C array.
// Matrices are written transposed, [cols][rows], so that the first index
// runs over columns and entry (i, j) is read as name[j][i].
func (kb *Builder) formatStaticMatrix(name string, m mat.Matrix) string {
	rows, cols := m.Dims()
	var sb strings.Builder

	typeStr := "double"
	if kb.FloatType == Float32 {
		typeStr = "float"
	}

	sb.WriteString(fmt.Sprintf("// Matrix %s stored in column-major format\n", name))
	sb.WriteString(fmt.Sprintf("const %s %s[%d][%d] = {\n", typeStr, name, cols, rows))

	for j := 0; j < cols; j++ {
		sb.WriteString("    {")
		for i := 0; i < rows; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			val := m.At(i, j)
			if kb.FloatType == Float32 {
				sb.WriteString(fmt.Sprintf("%.7ef", val))
			} else {
				sb.WriteString(fmt.Sprintf("%.15e", val))
			}
		}
		sb.WriteString("}")
		if j < cols-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("};\n\n")

	return sb.String()
}

// GetIntSize returns the size of int_t in bytes
func (kb *Builder) GetIntSize() int {
	if kb.IntType == INT32 {
		return 4
	}
	return 8
}

// GetFloatSize returns the size of real_t in bytes
func (kb *Builder) GetFloatSize() int {
	if kb.FloatType == Float32 {
		return 4
	}
	return 8
}
