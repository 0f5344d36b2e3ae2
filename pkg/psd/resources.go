package psd

import (
	"github.com/chocolatkey/rasterpreview/pkg/cursor"
	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

// Image resource IDs this package understands.
const (
	ResourceThumbnailLegacy = 1033 // Photoshop 4.0, BGR channel order
	ResourceThumbnail       = 1036
)

const resourceSignature = "8BIM"

// Resource is one 8BIM record of the Image Resources section. Data aliases
// the input.
type Resource struct {
	ID   uint16
	Name string
	Data []byte
}

// walkResources calls fn for each record of the section read by c until fn
// returns false or the section ends.
func walkResources(c *cursor.Reader, fn func(Resource) bool) error {
	for c.Remaining() > 0 {
		sig, err := c.Bytes(4)
		if err != nil {
			return err
		}
		if string(sig) != resourceSignature {
			return errorf(raster.UnsupportedVariant, "resource signature %q at offset %d", sig, c.Offset()-4)
		}

		var res Resource
		if res.ID, err = c.U16(); err != nil {
			return err
		}
		// Pascal string, padded so that length byte plus text is even.
		n, err := c.U8()
		if err != nil {
			return err
		}
		name, err := c.Bytes(int(n))
		if err != nil {
			return err
		}
		res.Name = string(name)
		if n%2 == 0 {
			if err = c.Skip(1); err != nil {
				return err
			}
		}

		size, err := c.U32()
		if err != nil {
			return err
		}
		data, err := c.Sub(size)
		if err != nil {
			return err
		}
		res.Data = data.Rest()
		if size%2 == 1 {
			if err = c.Skip(1); err != nil {
				return err
			}
		}

		if !fn(res) {
			return nil
		}
	}
	return nil
}

// findThumbnail returns the preferred thumbnail resource, stopping at the
// first 1036 record. A legacy 1033 record is used only when no 1036 exists.
func findThumbnail(c *cursor.Reader) (*Resource, error) {
	var legacy, current *Resource
	err := walkResources(c, func(res Resource) bool {
		switch res.ID {
		case ResourceThumbnail:
			current = &res
			return false
		case ResourceThumbnailLegacy:
			if legacy == nil {
				legacy = &res
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if current != nil {
		return current, nil
	}
	return legacy, nil
}
