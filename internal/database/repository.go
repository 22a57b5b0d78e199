package database

type Repository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	ListRoomsByOwner(ownerId int) ([]Room, error)
	DeactivateRoom(id int) error
	DeleteRoom(id int) error
	CreateMessage(params CreateMessageParams) (Message, error)
	ListMessages(roomId int) ([]Message, error)
}
