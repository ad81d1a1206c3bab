package dataset

import "github.com/Sternrassler/pagesim/pkg/random"

var firstNames = []string{
	"Fatma", "Mehmet", "Ayşe", "Mustafa", "Emine", "Ahmet", "Hatice", "Ali",
	"Zeynep", "Hüseyin", "Elif", "Hasan", "İbrahim", "Can", "Murat", "Özlem",
}

// "Şahin" appears twice, which skews the draw slightly towards it.
var lastNames = []string{
	"Yılmaz", "Şahin", "Demir", "Çelik", "Şahin", "Öztürk",
	"Kılıç", "Arslan", "Taş", "Aksoy", "Barış", "Dalkıran",
}

// randomFullName composes a first and a last name drawn independently.
func randomFullName(src random.Source) string {
	first := random.Pick(src, firstNames)
	last := random.Pick(src, lastNames)
	return first + " " + last
}
