package directory

type User struct {
	UID         string
	DN          string
	DisplayName string
	Mail        string
}
