package keyboard

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func items(n int) Markup {
	rows := make(Markup, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, Row{Data("ch"+strconv.Itoa(i), "/delete/"+strconv.Itoa(i))})
	}
	return rows
}

func TestPageListFirstPage(t *testing.T) {
	cancel := CancelButton("delete")
	page := PageList(nil, items(23), "/delete", &cancel)

	require.Len(t, page, PageSize+1)
	require.Equal(t, "/delete/0", page[0][0].Data)
	require.Equal(t, Row{cancel, Data(">", "/delete?page=1")}, page[PageSize])
}

func TestPageListMiddleAndLast(t *testing.T) {
	page := PageList(map[string]string{"page": "1"}, items(23), "/delete", nil)
	require.Equal(t, "/delete/10", page[0][0].Data)
	require.Equal(t, Row{Data("<", "/delete?page=0"), Data(">", "/delete?page=2")}, page[len(page)-1])

	page = PageList(map[string]string{"page": "9"}, items(23), "/delete", nil)
	require.Len(t, page, 4)
	require.Equal(t, "/delete/20", page[0][0].Data)
	require.Equal(t, Row{Data("<", "/delete?page=1")}, page[3])
}

func TestPageListSinglePageWithoutCancel(t *testing.T) {
	page := PageList(map[string]string{"page": "x"}, items(3), "/delete", nil)
	require.Len(t, page, 3)
}

func TestNPerRow(t *testing.T) {
	rows := NPerRow([]Button{Data("a", "1"), Data("b", "2"), Data("c", "3")}, 2)
	require.Len(t, rows, 2)
	require.Len(t, rows[1], 1)
	require.Len(t, NPerRow([]Button{Data("a", "1"), Data("b", "2")}, 1), 2)
}

func TestCancelButton(t *testing.T) {
	require.Equal(t, Button{Text: "Cancel", Data: "/cancel/clear"}, CancelButton("clear"))
	require.Equal(t, "No", CancelButton("clear", "No").Text)
}
