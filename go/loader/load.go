package loader

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/buffer"
	"github.com/lunixbochs/pef/go/models"
	"github.com/lunixbochs/pef/go/pef"
)

var UnknownMagic = errors.New("Could not identify file magic.")

func LoadFile(path string, opts ...Option) (models.Object, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return LoadBuffer(buffer.Bytes(p), opts...)
}

func Load(r io.ReaderAt, opts ...Option) (models.Object, error) {
	buf, err := buffer.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return LoadBuffer(buf, opts...)
}

func LoadBuffer(buf buffer.Bytes, opts ...Option) (models.Object, error) {
	if pef.Match(buf) {
		return NewPefLoaderBuffer(buf, opts...)
	}
	return nil, errors.WithStack(UnknownMagic)
}
