package model

// Contact is what the engine knows about an account.
type Contact struct {
	Number     string `json:"number"`
	PushName   string `json:"pushname,omitempty"`
	IsBusiness bool   `json:"is_business"`
}

// Profile describes the account a tenant's session is logged in as.
type Profile struct {
	UserNumber    string `json:"user_number"`
	ProfilePicURL string `json:"profile_pic_url"`
	UserName      string `json:"user_name"`
	UserAbout     string `json:"user_about"`
	IsBusiness    bool   `json:"is_business"`
}

// Media is a downloaded attachment ready to be sent.
type Media struct {
	MimeType string `json:"mimetype"`
	Data     []byte `json:"data"`
	Filename string `json:"filename,omitempty"`
}
