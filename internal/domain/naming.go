package domain

import (
	"math/rand/v2"
	"path"
	"strconv"
	"strings"
)

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// StorageNamePrefixLen is the length of the random prefix of a storage name.
const StorageNamePrefixLen = 6

// GenerateStorageName returns "<random alphanumerics>_<filename>".
// Identical uploads get distinct names.
func GenerateStorageName(filename string) string {
	var b strings.Builder
	b.Grow(StorageNamePrefixLen + 1 + len(filename))
	for i := 0; i < StorageNamePrefixLen; i++ {
		b.WriteByte(nameAlphabet[rand.IntN(len(nameAlphabet))])
	}
	b.WriteByte('_')
	b.WriteString(path.Base(filename))
	return b.String()
}

// PageName returns the storage name of page n of the PDF stored as pdfName.
func PageName(pdfName string, n int) string {
	stem := pdfName
	if i := strings.Index(strings.ToLower(stem), ".pdf"); i >= 0 {
		stem = stem[:i]
	}
	return stem + "_image_" + strconv.Itoa(n) + ".png"
}

// ConvertedPath derives the output location for a stored file by cutting the
// file name at its first '.' and appending "_converted.png".
func ConvertedPath(p string) string {
	dir, file := path.Split(p)
	if i := strings.IndexByte(file, '.'); i >= 0 {
		file = file[:i]
	}
	return dir + file + "_converted.png"
}
