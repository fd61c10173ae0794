/*
 * ckpt.go, part of pbembed.
 *
 * Copyright 2025 Raul Mera <rmeraatusachdotcl>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package ckpt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/rmera/pbembed/dmat"
)

//Write!

//Writer writes a checkpoint file.
type Writer struct {
	f         *os.File
	h         *zstd.Encoder
	w         *bufio.Writer
	nmat      int
	written   int
	filename  string
	writeable bool
}

//NewWriter creates the checkpoint file name, which will hold nmat matrices, and
//writes the header to it. Keys and values can't contain newlines, and keys can't contain "=".
func NewWriter(name string, nmat int, header map[string]string) (*Writer, error) {
	W := &Writer{filename: name, nmat: nmat}
	keys := make([]string, 0, len(header))
	for k, v := range header {
		if k == "" || strings.ContainsAny(k, "=\n") || strings.Contains(v, "\n") || strings.HasPrefix(k, "*") {
			return nil, Error{fmt.Sprintf("Invalid header entry %q=%q", k, v), name, []string{"NewWriter"}, true}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var err error
	W.f, err = os.Create(name)
	if err != nil {
		return nil, Error{err.Error(), name, []string{"os.Create", "NewWriter"}, true}
	}
	W.h, err = zstd.NewWriter(W.f, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		W.f.Close()
		return nil, Error{"Can't start compressor " + err.Error(), name, []string{"NewWriter"}, true}
	}
	W.w = bufio.NewWriter(W.h)
	for _, k := range keys {
		fmt.Fprintf(W.w, "%s=%s\n", k, header[k])
	}
	fmt.Fprintf(W.w, "** %d\n", nmat)
	W.writeable = true
	return W, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

//WNext writes the matrix M, with the given name, to the file. Names can't contain whitespace.
func (W *Writer) WNext(name string, M *dmat.Matrix) error {
	if !W.writeable {
		return Error{UnIniWrite, W.filename, []string{"WNext"}, true}
	}
	if M == nil {
		return Error{NilMatrix, W.filename, []string{"WNext"}, true}
	}
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return Error{fmt.Sprintf("Invalid matrix name %q", name), W.filename, []string{"WNext"}, true}
	}
	if W.written >= W.nmat {
		return Error{fmt.Sprintf("Only %d matrices were declared", W.nmat), W.filename, []string{"WNext"}, true}
	}
	r, c := M.Dims()
	cplx := ""
	if M.IsComplex() {
		cplx = " complex"
	}
	fmt.Fprintf(W.w, "* %s %s %d %d%s\n", name, M.Kind(), r, c, cplx)
	parts := []int{0}
	if M.IsComplex() {
		parts = append(parts, 1)
	}
	fields := make([]string, c)
	for _, part := range parts {
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				re, im := M.At(i, j)
				if part == 0 {
					fields[j] = formatFloat(re)
				} else {
					fields[j] = formatFloat(im)
				}
			}
			if _, err := W.w.WriteString(strings.Join(fields, " ") + "\n"); err != nil {
				return Error{err.Error(), W.filename, []string{"WNext"}, true}
			}
		}
	}
	W.written++
	return nil
}

//Close flushes and closes the file. It returns an error if fewer matrices than declared
//were written, or if something fails while flushing.
func (W *Writer) Close() error {
	if W == nil || !W.writeable {
		return nil
	}
	W.writeable = false
	err := W.w.Flush()
	if err2 := W.h.Close(); err == nil {
		err = err2
	}
	if err2 := W.f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return Error{err.Error(), W.filename, []string{"Close"}, true}
	}
	if W.written != W.nmat {
		return Error{fmt.Sprintf("%d matrices declared, %d written", W.nmat, W.written), W.filename, []string{"Close"}, true}
	}
	return nil
}

//Read!

//Reader reads a checkpoint file.
type Reader struct {
	f        *os.File
	dec      *zstd.Decoder
	h        *bufio.Reader
	nmat     int
	read     int
	filename string
	readable bool
}

//New opens a checkpoint file for reading, and returns the reader and the header.
func New(name string) (*Reader, map[string]string, error) {
	R := &Reader{filename: name, nmat: -1}
	var err error
	R.f, err = os.Open(name)
	if err != nil {
		return nil, nil, Error{err.Error(), name, []string{"os.Open", "New"}, true}
	}
	R.dec, err = zstd.NewReader(bufio.NewReader(R.f))
	if err != nil {
		R.f.Close()
		return nil, nil, Error{"Can't read header " + err.Error(), name, []string{"New"}, true}
	}
	R.h = bufio.NewReader(R.dec)
	m := make(map[string]string)
	for {
		str, err := R.h.ReadString('\n')
		if err != nil {
			R.close()
			return nil, nil, Error{"Can't read header " + err.Error(), name, []string{"New"}, true}
		}
		str = strings.TrimSuffix(str, "\n")
		if strings.HasPrefix(str, "**") {
			nm := strings.Fields(str)
			if len(nm) < 2 {
				R.close()
				return nil, nil, Error{fmt.Sprintf("Can't read matrix number from '%s'", str), name, []string{"New"}, true}
			}
			R.nmat, err = strconv.Atoi(nm[1])
			if err != nil || R.nmat < 0 {
				R.close()
				return nil, nil, Error{fmt.Sprintf("Can't read matrix number from '%s'", nm[1]), name, []string{"New"}, true}
			}
			break
		}
		k, v, ok := strings.Cut(str, "=")
		if !ok {
			R.close()
			return nil, nil, Error{"Malformed header line " + str, name, []string{"New"}, true}
		}
		m[k] = v
	}
	R.readable = true
	return R, m, nil
}

//Len returns the number of matrices in the file.
func (R *Reader) Len() int { return R.nmat }

//Readable returns true if Next can be called.
func (R *Reader) Readable() bool { return R.readable }

func (R *Reader) readRow(c int, dst []float64) error {
	line, err := R.h.ReadString('\n')
	if err != nil {
		return err
	}
	fields := strings.Fields(line)
	if len(fields) != c {
		return fmt.Errorf("%d values in a row of a matrix with %d columns", len(fields), c)
	}
	for j, f := range fields {
		dst[j], err = strconv.ParseFloat(f, 64)
		if err != nil {
			return err
		}
	}
	return nil
}

//Next reads the next matrix in the file, and returns it with its name. After the last matrix,
//it returns io.EOF and closes the reader.
func (R *Reader) Next() (string, *dmat.Matrix, error) {
	if !R.readable {
		return "", nil, Error{UnIniRead, R.filename, []string{"Next"}, true}
	}
	if R.read == R.nmat {
		R.close()
		return "", nil, io.EOF
	}
	line, err := R.h.ReadString('\n')
	if err != nil {
		return "", nil, Error{"Can't read matrix record: " + err.Error(), R.filename, []string{"Next"}, true}
	}
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "*" {
		return "", nil, Error{WrongFormat + ": " + strings.TrimSpace(line), R.filename, []string{"Next"}, true}
	}
	name := fields[1]
	kind, ok := dmat.ParseKind(fields[2])
	if !ok {
		return "", nil, Error{"Unknown matrix kind " + fields[2], R.filename, []string{"Next"}, true}
	}
	r, err1 := strconv.Atoi(fields[3])
	c, err2 := strconv.Atoi(fields[4])
	if err1 != nil || err2 != nil || r <= 0 || c <= 0 {
		return "", nil, Error{WrongFormat + ": bad dimensions in " + strings.TrimSpace(line), R.filename, []string{"Next"}, true}
	}
	cplx := len(fields) > 5 && fields[5] == "complex"
	re := make([]float64, r*c)
	for i := 0; i < r; i++ {
		if err := R.readRow(c, re[i*c:(i+1)*c]); err != nil {
			return "", nil, Error{fmt.Sprintf("Matrix %s, row %d: %s", name, i, err.Error()), R.filename, []string{"Next"}, true}
		}
	}
	M := dmat.FromSlice(kind, r, c, re)
	if cplx {
		im := make([]float64, r*c)
		for i := 0; i < r; i++ {
			if err := R.readRow(c, im[i*c:(i+1)*c]); err != nil {
				return "", nil, Error{fmt.Sprintf("Matrix %s, imaginary row %d: %s", name, i, err.Error()), R.filename, []string{"Next"}, true}
			}
		}
		M = dmat.FromDense(kind, M.Re(), dmat.FromSlice(kind, r, c, im).Re())
	}
	R.read++
	return name, M, nil
}

//ReadAll reads every remaining matrix and returns them by name.
func (R *Reader) ReadAll() (map[string]*dmat.Matrix, error) {
	ret := make(map[string]*dmat.Matrix)
	for {
		name, M, err := R.Next()
		if err == io.EOF {
			return ret, nil
		}
		if err != nil {
			return nil, errDecorate(err, "ReadAll")
		}
		ret[name] = M
	}
}

func (R *Reader) close() {
	if R.dec != nil {
		R.dec.Close()
	}
	R.f.Close()
	R.readable = false
}

//Close closes the reader, which can't be used afterwards.
func (R *Reader) Close() {
	if !R.readable {
		return
	}
	R.close()
}

//Errors

//errDecorate decorates the error with the caller's name if it is an Error, and returns it.
func errDecorate(err error, caller string) error {
	if e, ok := err.(Error); ok {
		e.deco = e.Decorate(caller)
		return e
	}
	return err
}

//Error is the error type of this package.
type Error struct {
	message  string
	filename string //the file that has problems, or empty string if none.
	deco     []string
	critical bool
}

func (err Error) Error() string {
	return fmt.Sprintf("checkpoint file %s error: %s", err.filename, err.message)
}

//Decorate adds new information to the error
func (E Error) Decorate(deco string) []string {
	if deco != "" {
		E.deco = append(E.deco, deco)
	}
	return E.deco
}

//FileName returns the file to which the failing checkpoint was associated
func (err Error) FileName() string { return err.filename }

//Critical returns true if the error is critical, false otherwise
func (err Error) Critical() bool { return err.critical }

const (
	UnIniRead   = "Checkpoint object uninitialized to read"
	UnIniWrite  = "Checkpoint object uninitialized to write"
	NilMatrix   = "Given nil matrix"
	WrongFormat = "Wrong format in the checkpoint file"
)
