package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/go-ptree/common"
)

func TestMkBitAddr(t *testing.T) {
	assert.Equal(t, MkAddr(10, 0), MkBitAddr(10, 0))
	assert.Equal(t, MkAddr(10, 5), MkBitAddr(10, 5))
	assert.Equal(t, MkAddr(11, 1), MkBitAddr(10, common.NBITSECTOR+1))
	assert.Equal(t, 11*common.NBITSECTOR+1, MkBitAddr(10, common.NBITSECTOR+1).Flatid())
}
