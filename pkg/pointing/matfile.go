package pointing

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ParseMatrixFile reads a matrix file: the pole offset followed by the nine
// rotation values in row-major order, separated by any whitespace.
func ParseMatrixFile(r io.Reader) (rotation [3][3]float64, poleOffset float64, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	values := make([]float64, 0, 10)
	for scanner.Scan() {
		v, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return rotation, 0, fmt.Errorf("%w: value %d: %v", ErrInvalidMatrix, len(values)+1, err)
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return rotation, 0, fmt.Errorf("failed to read matrix file: %w", err)
	}
	if len(values) != 10 {
		return rotation, 0, fmt.Errorf("%w: expected 10 values, got %d", ErrInvalidMatrix, len(values))
	}

	poleOffset = values[0]
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rotation[i][j] = values[1+i*3+j]
		}
	}
	return rotation, poleOffset, nil
}

// LoadMatrixFile opens and parses a matrix file from disk.
func LoadMatrixFile(path string) ([3][3]float64, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [3][3]float64{}, 0, fmt.Errorf("failed to open matrix file: %w", err)
	}
	defer f.Close()
	return ParseMatrixFile(f)
}
